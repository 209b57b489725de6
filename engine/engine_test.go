package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// testBase wires a real catalog and message table with a resolver whose
// fetches are served from memory.
func testBase(t *testing.T, imageData []byte) (catalog *models.Catalog, resolver *images.Resolver, msgs *messages.Messages) {
	t.Helper()

	config := images.DefaultResolverConfig()
	config.Client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader(imageData)),
		}, nil
	})}
	return models.NewCatalog(), images.NewResolver(config), messages.New()
}

func TestResultNormalized(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"Auſſerdem", "Ausserdem"},
		{"Buch⸗druck", "Buch-druck"},
		{"Waͤlder und Huͤgel", "Wälder und Hügel"},
		{"ℳ 100", "M 100"},
		{"plain text", "plain text"},
	}
	for _, c := range cases {
		result := Result{Text: c.in}.Normalized()
		if result.Text != c.out {
			t.Errorf("expected %q, got %q", c.out, result.Text)
		}
	}
}

func TestResultJSONOmitsEmptyWarnings(t *testing.T) {
	if got := mustMarshal(t, Result{Text: "hello"}); got != `{"text":"hello"}` {
		t.Errorf("unexpected JSON: %s", got)
	}
	if got := mustMarshal(t, Result{Warnings: []string{"w"}}); got != `{"text":"","warnings":["w"]}` {
		t.Errorf("unexpected JSON: %s", got)
	}
}

// An empty warnings slice and a nil one are the same result: both mean "no
// warnings" and both serialize without the field, so a result stored with
// an empty slice comes back with nil.
func TestResultJSONRoundTrip(t *testing.T) {
	cases := []Result{
		{Text: "hello"},
		{Text: "hello", Warnings: []string{}},
		{Text: "hello", Warnings: []string{"first", "second"}},
	}
	for _, in := range cases {
		var out Result
		if err := json.Unmarshal([]byte(mustMarshal(t, in)), &out); err != nil {
			t.Fatal(err.Error())
		}
		if out.Text != in.Text {
			t.Errorf("text changed across the round trip: %q", out.Text)
		}
		if len(out.Warnings) != len(in.Warnings) {
			t.Errorf("expected %d warnings, got %d", len(in.Warnings), len(out.Warnings))
		}
		if len(in.Warnings) == 0 && out.Warnings != nil {
			t.Errorf("expected no warnings field, got %v", out.Warnings)
		}
	}
}

func mustMarshal(t *testing.T, result Result) string {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err.Error())
	}
	return string(raw)
}
