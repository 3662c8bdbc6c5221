package usecase

import (
	"fmt"
	"strings"
)

// TextTypeWhyJoin 对应“为什么想加入我们”类问题。
const TextTypeWhyJoin = "why_join"

const letterPromptTemplate = `Tu es un assistant expert en rédaction professionnelle.

Objectif :
Rédige une lettre de motivation complète et immédiatement exploitable, adaptée à l'offre d'emploi et au CV ci-dessous.

Règles :
- Donne uniquement le texte final de la lettre, sans commentaire, balise, guillemet ni explication.
- N'utilise aucun élément entre crochets (pas de [Date], [Nom], etc.).
- Si une information manque (adresse, nom du recruteur...), utilise une formule naturelle générique, par exemple "Madame, Monsieur," ou "le service recrutement".
- Mise en page prête à l'envoi : coordonnées en haut, objet, paragraphes séparés par une ligne vide, signature.
- Langue : français professionnel, fluide et naturel.
- Ton : motivé, sincère et précis, sans exagération.

Texte du CV :
%s

Texte de l'offre d'emploi :
%s

Rédige maintenant la lettre de motivation finale :`

const whyJoinPromptTemplate = `Vous êtes un assistant expert en communication RH.

Contexte (CV) :
%s

Offre d'emploi :
%s

Tâche : rédigez une réponse concise (3 à 6 phrases) à la question "Expliquez-nous pourquoi vous souhaitez nous rejoindre." Ton professionnel et motivé. Ne fournissez que le texte de la réponse, sans préambule ni signature.`

const defaultTextPromptTemplate = `Vous êtes un assistant expert.

Contexte (CV) :
%s

Offre d'emploi :
%s

Tâche : rédigez un court paragraphe adapté à l'offre.`

// BuildLetterPrompt 构造求职信提示词。职位文本为空时照常生成。
func BuildLetterPrompt(cvText, jobOfferText string) string {
	return fmt.Sprintf(letterPromptTemplate, strings.TrimSpace(cvText), strings.TrimSpace(jobOfferText))
}

// BuildTextPrompt 按文本类型构造提示词，未知类型使用通用段落模板。
func BuildTextPrompt(textType, cvText, jobOfferText string) string {
	tmpl := defaultTextPromptTemplate
	if strings.EqualFold(strings.TrimSpace(textType), TextTypeWhyJoin) {
		tmpl = whyJoinPromptTemplate
	}
	return fmt.Sprintf(tmpl, strings.TrimSpace(cvText), strings.TrimSpace(jobOfferText))
}
