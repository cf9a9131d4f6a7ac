package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiTimeout = 60 * time.Second

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	now    func() time.Time
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = receiptSchema()

	return &Gemini{
		client: client,
		model:  model,
		now:    time.Now,
	}, nil
}

// receiptSchema constrains the model output to the ExtractionResult shape
func receiptSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"merchantName": {Type: genai.TypeString},
			"date":         {Type: genai.TypeString, Description: "YYYY-MM-DD format"},
			"totalAmount":  {Type: genai.TypeNumber},
			"currency":     {Type: genai.TypeString, Description: "Symbol like $ or £"},
			"category":     {Type: genai.TypeString, Format: "enum", Enum: Categories},
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"description": {Type: genai.TypeString},
						"amount":      {Type: genai.TypeNumber},
					},
					Required: []string{"description", "amount"},
				},
			},
		},
		Required: []string{"merchantName", "date", "totalAmount", "currency", "category", "items"},
	}
}

// Extract analyzes a receipt and extracts its fields
func (g *Gemini) Extract(ctx context.Context, imageData []byte, contentType string) (*ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	pngData, err := prepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData wants the format suffix, not the full MIME type
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", pngData), genai.Text(extractionPrompt))
	if err != nil {
		return nil, classifyError(fmt.Errorf("generating content: %w", err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, NewExtractionError(KindImageQuality, fmt.Errorf("no response from gemini"))
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	if strings.TrimSpace(responseText.String()) == "" {
		return nil, NewExtractionError(KindImageQuality, fmt.Errorf("empty response from gemini"))
	}

	return parseExtraction(responseText.String(), g.now())
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
