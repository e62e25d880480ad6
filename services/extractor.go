package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/ledongthuc/pdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// LargePageThreshold is the page count above which extraction is delegated to
// the OCR service instead of the in-process parser.
const LargePageThreshold = 50

const (
	ocrPollBaseDelay = time.Second
	ocrPollMaxDelay  = 30 * time.Second
)

// textractAPI is the subset of the Textract client used by the extractor
type textractAPI interface {
	StartDocumentTextDetection(ctx context.Context, params *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, params *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

// TextExtractor extracts the full text of a PDF, in process for small
// documents and through Textract for large ones
type TextExtractor struct {
	textractClient  textractAPI
	maxPollAttempts int
}

// NewTextExtractor creates a new text extractor
func NewTextExtractor(ctx context.Context, region string, maxPollAttempts int) (*TextExtractor, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if maxPollAttempts <= 0 {
		maxPollAttempts = 30
	}

	return &TextExtractor{
		textractClient:  textract.NewFromConfig(awsCfg),
		maxPollAttempts: maxPollAttempts,
	}, nil
}

// CountPages reads the page count from a local PDF. Returns 0 when the file
// cannot be parsed, which routes the document through the in-process path.
func (te *TextExtractor) CountPages(path string) (count int) {
	// The parser panics on some malformed files instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("PDF page count failed", "path", path, "panic", r)
			count = 0
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		logger.Warn("PDF page count failed", "path", path, "error", err)
		return 0
	}
	defer f.Close()

	return reader.NumPage()
}

// Extract returns the document's full text, pages separated by blank lines.
// Documents above LargePageThreshold are sent to Textract against the
// original S3 object; everything else is parsed from the local copy.
func (te *TextExtractor) Extract(ctx context.Context, bucket, key, localPath string, pageCount int) (string, error) {
	if pageCount > LargePageThreshold {
		return te.extractWithTextract(ctx, bucket, key)
	}
	return te.extractLocal(localPath)
}

// extractLocal parses the PDF in process. Pages that fail to decode are
// skipped with a warning rather than failing the whole document.
func (te *TextExtractor) extractLocal(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer f.Close()

	fonts := make(map[string]*pdf.Font)

	var pages []string
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}
		pages = append(pages, pageText)
	}

	return strings.Join(pages, "\n\n"), nil
}

// extractWithTextract runs an asynchronous text detection job and rebuilds
// the document from its paginated results.
func (te *TextExtractor) extractWithTextract(ctx context.Context, bucket, key string) (string, error) {
	tracer := otel.Tracer("text-extractor")
	ctx, span := tracer.Start(ctx, "textract.detect")
	defer span.End()

	span.SetAttributes(
		attribute.String("s3.bucket", bucket),
		attribute.String("s3.key", key),
	)

	start, err := te.textractClient.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(key),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to start text detection: %v", models.ErrOCRFailed, err)
	}

	jobID := aws.ToString(start.JobId)
	logger.Info("Textract job started", "job_id", jobID, "bucket", bucket, "key", key)

	if err := te.waitForJob(ctx, jobID); err != nil {
		return "", err
	}

	return te.collectJobText(ctx, jobID)
}

// waitForJob polls the detection job until it reaches a terminal state, with
// exponential backoff and a bounded number of attempts.
func (te *TextExtractor) waitForJob(ctx context.Context, jobID string) error {
	delay := ocrPollBaseDelay

	for attempt := 1; attempt <= te.maxPollAttempts; attempt++ {
		out, err := te.textractClient.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId: aws.String(jobID),
		})
		if err != nil {
			return fmt.Errorf("%w: failed to poll job %s: %v", models.ErrOCRFailed, jobID, err)
		}

		switch out.JobStatus {
		case types.JobStatusSucceeded:
			return nil
		case types.JobStatusFailed:
			return fmt.Errorf("%w: job %s failed: %s", models.ErrOCRFailed, jobID, aws.ToString(out.StatusMessage))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: job %s: %v", models.ErrOCRFailed, jobID, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ocrPollMaxDelay {
			delay = ocrPollMaxDelay
		}
	}

	return fmt.Errorf("%w: job %s did not finish after %d polls", models.ErrOCRFailed, jobID, te.maxPollAttempts)
}

// collectJobText pages through the finished job, grouping LINE blocks by page.
// Lines are joined with newlines, pages in ascending order with blank lines.
func (te *TextExtractor) collectJobText(ctx context.Context, jobID string) (string, error) {
	pageLines := make(map[int][]string)

	var nextToken *string
	for {
		out, err := te.textractClient.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: nextToken,
		})
		if err != nil {
			return "", fmt.Errorf("%w: failed to fetch results for job %s: %v", models.ErrOCRFailed, jobID, err)
		}

		for _, block := range out.Blocks {
			if block.BlockType != types.BlockTypeLine {
				continue
			}
			page := int(aws.ToInt32(block.Page))
			pageLines[page] = append(pageLines[page], aws.ToString(block.Text))
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	pages := make([]int, 0, len(pageLines))
	for page := range pageLines {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		texts = append(texts, strings.Join(pageLines[page], "\n"))
	}

	return strings.Join(texts, "\n\n"), nil
}
