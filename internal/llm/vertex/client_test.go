package vertex

import (
	"context"
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

func TestResponseText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"nil response", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{
			"text parts joined, non-text skipped",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{
					genai.Text("Patient: Jane Doe\n"),
					genai.Blob{MIMEType: "image/png", Data: []byte{1}},
					genai.Text("Glucose 5.4 mmol/L"),
				}},
			}}},
			"Patient: Jane Doe\nGlucose 5.4 mmol/L",
		},
		{
			"only the first candidate",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("first")}}},
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("second")}}},
			}},
			"first",
		},
		{
			"candidates without content are skipped",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{
				nil,
				{Content: nil},
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("usable")}}},
			}},
			"usable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := responseText(tt.resp); got != tt.want {
				t.Errorf("responseText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Region: "us-central1"}, nil); err == nil {
		t.Error("expected error without project id")
	}
	if (&Client{}).Available() {
		t.Error("a client without a model is not available")
	}
}
