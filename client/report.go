package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rmbt-go/rmbt/rmbterr"
)

// Report is the JSON payload posted to the control collaborator, per
// §4.4/§6: client UUID, connection type, thread count, build hash,
// server IP, optional signed envelopes, and timestamp.
type Report struct {
	ClientUUID     string   `json:"client_uuid"`
	ConnectionType string   `json:"connection_type"`
	ThreadCount    int      `json:"thread_count"`
	BuildHash      string   `json:"build_hash,omitempty"`
	ServerIP       string   `json:"server_ip"`
	PingNs         int64    `json:"ping_ns"`
	DownloadHmbps  int64    `json:"download_hmbps"`
	UploadHmbps    int64    `json:"upload_hmbps"`
	Envelopes      []string `json:"signed_envelopes,omitempty"`
	TimestampNs    int64    `json:"timestamp_ns"`
}

// buildHash resolves the commit-hash annotation from GITHUB_SHA (§6), the
// only source of build identity this system consults.
func buildHash() string {
	return os.Getenv("GITHUB_SHA")
}

// postReport POSTs r as JSON to url. A non-2xx response is a
// KindReporting error: logged by the caller, never fatal to the run
// (§4.4, §7).
func postReport(url string, r *Report, logger *zap.SugaredLogger) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return rmbterr.Wrap(rmbterr.KindReporting, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("client: report endpoint returned status %d", resp.StatusCode)
		if logger != nil {
			logger.Warnw("report post failed", "status", resp.StatusCode)
		}
		return rmbterr.Wrap(rmbterr.KindReporting, err)
	}
	return nil
}
