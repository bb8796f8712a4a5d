package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// Vision sends images to Google Cloud Vision document text detection.
type Vision struct {
	client *vision.ImageAnnotatorClient
}

// NewVision creates a Cloud Vision client. An empty credentialsFile falls
// back to application default credentials.
func NewVision(ctx context.Context, credentialsFile string) (*Vision, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &Vision{client: client}, nil
}

func (v *Vision) Name() string { return EngineVision }

// Recognize runs DOCUMENT_TEXT_DETECTION on a single image.
func (v *Vision) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return "", errors.New("no response from vision API")
	}

	imgResp := resp.GetResponses()[0]
	if imgResp.GetError() != nil {
		return "", fmt.Errorf("vision API error: %s", imgResp.GetError().GetMessage())
	}

	text := imgResp.GetFullTextAnnotation().GetText()
	slog.Info("Extracted OCR text", "engine", EngineVision, "length", len(text))
	return text, nil
}

// Close releases the underlying gRPC connection.
func (v *Vision) Close() error {
	return v.client.Close()
}
