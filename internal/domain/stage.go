package domain

// Stage 标识生成流程所处的阶段。
type Stage string

const (
	StageValidating       Stage = "validating"
	StageExtracting       Stage = "extracting"
	StageFetching         Stage = "fetching"
	StageGenerating       Stage = "generating"
	StageRendering        Stage = "rendering"
	StagePersisting       Stage = "persisting"
	StageRecordingHistory Stage = "recording_history"
	StageCommittingCredit Stage = "committing_credit"
	StageSucceeded        Stage = "succeeded"
	StageFailed           Stage = "failed"
)

// Terminal 判断阶段是否为终态。
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed
}
