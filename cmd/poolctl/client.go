package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

type apiError struct {
	Status  int
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error %d (%s): %s", e.Status, e.Kind, e.Message)
}

// callAPI issues a request against the admin API and returns the raw JSON
// body of a successful response. Non-2xx responses come back as *apiError.
func callAPI(method, path string, payload interface{}, token string) (json.RawMessage, error) {
	endpoint := strings.TrimRight(apiEndpoint, "/") + "/v1" + path
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	apiErr := &apiError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return nil, apiErr
}

func pathEscape(segment string) string {
	return url.PathEscape(strings.TrimSpace(segment))
}

func handleAPIError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if apiErr, ok := err.(*apiError); ok {
		fmt.Fprintln(w, apiErr.Error())
		return 1
	}
	fmt.Fprintf(w, "API call failed: %v\n", err)
	return 1
}

// writeResult pretty-prints a JSON body. Empty bodies print "ok".
func writeResult(w io.Writer, result json.RawMessage) {
	if len(bytes.TrimSpace(result)) == 0 {
		fmt.Fprintln(w, "ok")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		_, _ = w.Write(result)
		fmt.Fprintln(w)
		return
	}
	pretty.WriteByte('\n')
	_, _ = w.Write(pretty.Bytes())
}
