package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const convertPath = "/v1alpha/convert/file"

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

type Provenance struct {
	PageNo int `json:"page_no"`
}

type TableCell struct {
	Text     string `json:"text"`
	StartRow int    `json:"start_row_offset_idx"`
	StartCol int    `json:"start_col_offset_idx"`
	RowSpan  int    `json:"row_span"`
	ColSpan  int    `json:"col_span"`
}

type TableData struct {
	NumRows int         `json:"num_rows"`
	NumCols int         `json:"num_cols"`
	Cells   []TableCell `json:"table_cells"`
}

type Table struct {
	Prov []Provenance `json:"prov"`
	Data *TableData   `json:"data"`
}

type TextItem struct {
	Text string       `json:"text"`
	Prov []Provenance `json:"prov"`
}

// Document is the subset of the converted document we read.
type Document struct {
	Tables []Table    `json:"tables"`
	Texts  []TextItem `json:"texts"`
}

type convertResponse struct {
	Status   string `json:"status"`
	Document struct {
		JSONContent *Document `json:"json_content"`
	} `json:"document"`
	Errors []struct {
		Message string `json:"error_message"`
	} `json:"errors"`
}

// Convert uploads the file at path and returns the structured document.
func (c *Client) Convert(ctx context.Context, path string) (*Document, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("to_formats", "json"); err != nil {
		return nil, err
	}
	if err := mw.WriteField("do_ocr", "false"); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- path comes from the upload store
	if err != nil {
		return nil, err
	}
	_, err = io.Copy(part, f)
	f.Close()
	if err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+convertPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("docling api error: %d", resp.StatusCode)
	}

	var result convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode docling response: %w", err)
	}
	if result.Status != "" && result.Status != "success" && result.Status != "partial_success" {
		msg := result.Status
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		return nil, fmt.Errorf("docling conversion failed: %s", msg)
	}
	if result.Document.JSONContent == nil {
		return nil, fmt.Errorf("docling response has no json content")
	}
	return result.Document.JSONContent, nil
}
