package joboffer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJobInfo(t *testing.T) {
	info := ExtractJobInfo("https://www.welcometothejungle.com/fr/companies/acme-corp/jobs/senior-developer?q=go&o=1")
	require.NotNil(t, info.CompanyName)
	require.NotNil(t, info.JobTitle)
	assert.Equal(t, "Acme Corp", *info.CompanyName)
	assert.Equal(t, "Senior Developer", *info.JobTitle)

	upper := ExtractJobInfo("https://www.WelcomeToTheJungle.com/en/companies/BIG-CO/jobs/data-engineer")
	require.NotNil(t, upper.CompanyName)
	assert.Equal(t, "Big Co", *upper.CompanyName)
}

func TestExtractJobInfoUnknownShapes(t *testing.T) {
	for _, url := range []string{
		"https://www.linkedin.com/jobs/view/123",
		"https://www.welcometothejungle.com/fr/companies/acme",
		"",
		"not a url at all",
	} {
		info := ExtractJobInfo(url)
		assert.Nil(t, info.CompanyName, url)
		assert.Nil(t, info.JobTitle, url)
	}
}

const offerPage = `<html><body>
<div data-testid="job-section-description"><h2>Descriptif du poste</h2><p>Vous rejoindrez l'équipe plateforme.</p>
<ul><li>Concevoir des API</li><li>Opérer Kubernetes</li></ul></div>
<div data-testid="job-section-other">ignored</div>
<div data-testid="job-section-experience"><p>Profil recherché</p><ul><li>3 ans de Go</li></ul></div>
</body></html>`

func TestWTTJFetcherExtractsSections(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, offerPage)
	}))
	defer srv.Close()

	text, err := NewWTTJFetcher("cvlm-test", time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "cvlm-test", gotUA)
	assert.Contains(t, text, "Descriptif du poste")
	assert.Contains(t, text, "\n• Concevoir des API")
	assert.Contains(t, text, "\n• Opérer Kubernetes")
	assert.Contains(t, text, "\n\nProfil recherché")
	assert.Contains(t, text, "\n• 3 ans de Go")
	assert.NotContains(t, text, "ignored")
}

func TestWTTJFetcherStopsReadingLargePages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div data-testid="job-section-description">Descriptif du poste</div>`)
		fmt.Fprint(w, strings.Repeat("<p>padding</p>", maxOfferBytes/len("<p>padding</p>")+1))
		fmt.Fprint(w, `<div data-testid="job-section-experience">Profil tardif</div></body></html>`)
	}))
	defer srv.Close()

	text, err := NewWTTJFetcher("", time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "Descriptif du poste")
	assert.NotContains(t, text, "Profil tardif")
}

func TestWTTJFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "<html><body><p>no sections</p></body></html>")
	}))
	defer srv.Close()

	f := NewWTTJFetcher("", time.Second)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	_, err = f.Fetch(context.Background(), srv.URL+"/empty")
	assert.ErrorIs(t, err, ErrEmptyOffer)
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (c *countingFetcher) Fetch(context.Context, string) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return "offer text", nil
}

func TestCachedFetcher(t *testing.T) {
	ctx := context.Background()
	inner := &countingFetcher{}
	cached := NewCachedFetcher(inner, time.Minute)

	for i := 0; i < 3; i++ {
		text, err := cached.Fetch(ctx, "https://example.com/a")
		require.NoError(t, err)
		assert.Equal(t, "offer text", text)
	}
	assert.EqualValues(t, 1, inner.calls.Load())

	failing := &countingFetcher{err: errors.New("blocked")}
	cached = NewCachedFetcher(failing, time.Minute)
	for i := 0; i < 2; i++ {
		_, err := cached.Fetch(ctx, "https://example.com/b")
		assert.Error(t, err)
	}
	assert.EqualValues(t, 2, failing.calls.Load())
}
