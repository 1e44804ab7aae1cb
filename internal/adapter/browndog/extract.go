package browndog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

// UploadURL registers fileURL with the DTS and returns the file id. With
// extractAll false the upload does not start any extractor.
func (c *Client) UploadURL(ctx context.Context, token, fileURL string, extractAll bool) (string, error) {
	target := c.url("/dts/api/extractions/upload_url")
	if !extractAll {
		target += "?extract=0"
	}
	body, err := jsonBody(map[string]string{"fileurl": fileURL})
	if err != nil {
		return "", fmt.Errorf("op=browndog.UploadURL: %w", err)
	}
	resp, err := c.Do(ctx, Request{
		Operation: "upload_url",
		Method:    http.MethodPost,
		URL:       target,
		Header:    jsonHeader(),
		Body:      body,
		Token:     token,
	})
	if err != nil {
		return "", fmt.Errorf("op=browndog.UploadURL: %w", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := decodeJSON("browndog.UploadURL", resp, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("op=browndog.UploadURL: empty file id: %s", resp.Text())
	}
	return out.ID, nil
}

// TriggerExtractor submits fileID to one named extractor.
func (c *Client) TriggerExtractor(ctx context.Context, token, fileID, extractor string) error {
	body, err := jsonBody(map[string]string{"extractor": extractor})
	if err != nil {
		return fmt.Errorf("op=browndog.TriggerExtractor: %w", err)
	}
	_, err = c.Do(ctx, Request{
		Operation: "trigger_extractor",
		Method:    http.MethodPost,
		URL:       c.url("/dts/api/files/", url.PathEscape(fileID), "/extractions"),
		Header:    jsonHeader(),
		Body:      body,
		Token:     token,
	})
	if err != nil {
		return fmt.Errorf("op=browndog.TriggerExtractor: %w", err)
	}
	return nil
}

// Status reads the extraction status of fileID.
func (c *Client) Status(ctx context.Context, token, fileID string) (domain.ExtractionStatus, error) {
	resp, err := c.getJSON(ctx, "extraction_status", token, c.url("/dts/api/extractions/", url.PathEscape(fileID), "/status"))
	if err != nil {
		return domain.ExtractionStatus{}, fmt.Errorf("op=browndog.Status: %w", err)
	}
	var st domain.ExtractionStatus
	if err := decodeJSON("browndog.Status", resp, &st); err != nil {
		return domain.ExtractionStatus{}, err
	}
	return st, nil
}

// Metadata returns the extracted metadata document of fileID.
func (c *Client) Metadata(ctx context.Context, token, fileID string) (json.RawMessage, error) {
	return c.rawJSON(ctx, "metadata", token, c.url("/dts/api/extractions/", url.PathEscape(fileID), "/metadata"))
}

// TechnicalMetadata returns the technical metadata of fileID.
func (c *Client) TechnicalMetadata(ctx context.Context, token, fileID string) (json.RawMessage, error) {
	return c.rawJSON(ctx, "technical_metadata", token, c.url("/dts/api/files/", url.PathEscape(fileID), "/technicalmetadatajson"))
}

// MetadataJSONLD returns the JSON-LD metadata of fileID, restricted to one
// extractor when extractor is not empty. An extractor that has not
// reported yet yields an empty array.
func (c *Client) MetadataJSONLD(ctx context.Context, token, fileID, extractor string) (json.RawMessage, error) {
	target := c.url("/dts/api/files/", url.PathEscape(fileID), "/metadata.jsonld")
	if extractor != "" {
		target += "?extractor=" + url.QueryEscape(extractor)
	}
	return c.rawJSON(ctx, "metadata_jsonld", token, target)
}

// DeleteFile removes fileID and its metadata from the DTS.
func (c *Client) DeleteFile(ctx context.Context, token, fileID string) error {
	_, err := c.Do(ctx, Request{
		Operation: "delete_file",
		Method:    http.MethodDelete,
		URL:       c.url("/dts/api/files/", url.PathEscape(fileID)),
		Token:     token,
	})
	if err != nil {
		return fmt.Errorf("op=browndog.DeleteFile: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, operation, token, target string) (*Response, error) {
	return c.Do(ctx, Request{
		Operation: operation,
		Method:    http.MethodGet,
		URL:       target,
		Header:    jsonHeader(),
		Token:     token,
	})
}

func (c *Client) rawJSON(ctx context.Context, operation, token, target string) (json.RawMessage, error) {
	op := "browndog." + operation
	resp, err := c.getJSON(ctx, operation, token, target)
	if err != nil {
		return nil, fmt.Errorf("op=%s: %w", op, err)
	}
	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("op=%s: invalid json: %s", op, resp.Text())
	}
	return json.RawMessage(resp.Body), nil
}
