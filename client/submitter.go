package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"
)

// Submitter packages a session's segments into a multipart payload and sends
// them to the compilation service.
type Submitter struct {
	BaseURL            string
	MinDurationSeconds int
	HTTPClient         *http.Client
}

func NewSubmitter(baseURL string, minDurationSeconds int) *Submitter {
	return &Submitter{
		BaseURL:            baseURL,
		MinDurationSeconds: minDurationSeconds,
		HTTPClient:         &http.Client{Timeout: 10 * time.Minute},
	}
}

type uploadResponse struct {
	CompiledFile string `json:"compiledFile"`
	Message      string `json:"message"`
}

// Submit sends every segment to the server and returns the compiled artifact
// reference. It fails before any network I/O with NotReadyError when the
// duration gate is not satisfied, with MissingPayloadError when a segment
// never materialized into bytes, and with AlreadyCompilingError when a
// submission is already outstanding or the session is compiled.
func (s *Submitter) Submit(ctx context.Context, sess *Session) (string, error) {
	total := sess.Store.AggregateDuration()
	if total < s.MinDurationSeconds {
		return "", &NotReadyError{Total: total, Minimum: s.MinDurationSeconds}
	}

	segments := sess.Store.Segments()
	var missing []string
	for _, seg := range segments {
		if len(seg.Payload) == 0 {
			missing = append(missing, seg.Filename)
		}
	}
	if len(missing) > 0 {
		return "", &MissingPayloadError{Filenames: missing}
	}

	if err := sess.beginSubmit(); err != nil {
		return "", err
	}

	ref, err := s.post(ctx, sess.ID, segments)
	if err != nil {
		sess.failSubmit()
		return "", err
	}

	sess.completeSubmit(ref)
	return ref, nil
}

func (s *Submitter) post(ctx context.Context, sessionID string, segments []Segment) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("sessionId", sessionID); err != nil {
		return "", fmt.Errorf("failed to build payload: %w", err)
	}
	// Parts are appended in sequence order; the server concatenates in
	// the order received.
	for _, seg := range segments {
		part, err := writer.CreateFormFile("files", seg.Filename)
		if err != nil {
			return "", fmt.Errorf("failed to build payload: %w", err)
		}
		if _, err := part.Write(seg.Payload); err != nil {
			return "", fmt.Errorf("failed to build payload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("invalid server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("compilation failed: %s", result.Message)
	}
	if result.CompiledFile == "" {
		return "", fmt.Errorf("server returned no compiled file reference")
	}
	return result.CompiledFile, nil
}

type trainRequest struct {
	SessionID string `json:"sessionId"`
}

type trainResponse struct {
	Message string `json:"message"`
}

// TriggerTraining asks the server to hand the session's compiled artifact to
// the downstream training job. Distinct from compilation failure: a trigger
// failure never invalidates the compiled artifact.
func (s *Submitter) TriggerTraining(ctx context.Context, sess *Session) (string, error) {
	payload, err := json.Marshal(trainRequest{SessionID: sess.ID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/upload-model", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("training trigger request failed: %w", err)
	}
	defer resp.Body.Close()

	var result trainResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("invalid server response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return result.Message, nil
	case resp.StatusCode == http.StatusBadRequest:
		return "", ErrArtifactNotFound
	default:
		return "", fmt.Errorf("training trigger failed: %s", result.Message)
	}
}
