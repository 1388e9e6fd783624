package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

// DeepStack integrates DeepStack-compatible face endpoints (DeepStack,
// CodeProject.AI and other servers speaking the same API).
type DeepStack struct {
	cfg      config.DeepStackConfig
	detect   PolicyResolver
	client   *http.Client
	requests atomic.Int64
}

func NewDeepStack(cfg config.DeepStackConfig, detect PolicyResolver) *DeepStack {
	return &DeepStack{
		cfg:    cfg,
		detect: detect,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (d *DeepStack) Name() string { return "deepstack" }

func (d *DeepStack) Timeout() time.Duration { return d.cfg.Timeout }

// Requests returns the number of recognition calls issued, for diagnostics.
func (d *DeepStack) Requests() int64 { return d.requests.Load() }

func (d *DeepStack) post(ctx context.Context, path string, fields map[string]string, image []byte) (RawResponse, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("image", "image.jpg")
	if err != nil {
		return RawResponse{}, fmt.Errorf("encode form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return RawResponse{}, fmt.Errorf("encode form: %w", err)
	}
	if d.cfg.Key != "" {
		fields["api_key"] = d.cfg.Key
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return RawResponse{}, fmt.Errorf("encode form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return RawResponse{}, fmt.Errorf("encode form: %w", err)
	}

	url := strings.TrimRight(d.cfg.URL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return RawResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return RawResponse{}, &UnavailableError{Detector: d.Name(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawResponse{}, &UnavailableError{Detector: d.Name(), Err: err}
	}
	return RawResponse{
		Detector: d.Name(),
		Status:   resp.StatusCode,
		Body:     data,
		Elapsed:  time.Since(start),
	}, nil
}

func (d *DeepStack) Recognize(ctx context.Context, image []byte) (RawResponse, error) {
	d.requests.Add(1)
	return d.post(ctx, "/v1/vision/face/recognize", map[string]string{}, image)
}

func (d *DeepStack) Train(ctx context.Context, name string, image []byte) (json.RawMessage, error) {
	raw, err := d.post(ctx, "/v1/vision/face/register", map[string]string{"userid": name}, image)
	if err != nil {
		return nil, err
	}
	if raw.Status >= 300 {
		return nil, &UnavailableError{Detector: d.Name(),
			Err: fmt.Errorf("register returned status %d: %s", raw.Status, raw.Body)}
	}
	return raw.Body, nil
}

// Remove deletes the registered identity. DeepStack responds success even for
// unknown userids, so absence is naturally tolerated.
func (d *DeepStack) Remove(ctx context.Context, refs RemoveRefs) error {
	form := fmt.Sprintf("userid=%s", refs.Name)
	if d.cfg.Key != "" {
		form += "&api_key=" + d.cfg.Key
	}
	url := strings.TrimRight(d.cfg.URL, "/") + "/v1/vision/face/delete"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(form))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return &UnavailableError{Detector: d.Name(), Err: err}
	}
	resp.Body.Close()
	return nil
}

type deepstackBody struct {
	Success     *bool  `json:"success"`
	Error       string `json:"error"`
	Predictions []struct {
		UserID     string  `json:"userid"`
		Confidence float64 `json:"confidence"`
		XMin       int     `json:"x_min"`
		YMin       int     `json:"y_min"`
		XMax       int     `json:"x_max"`
		YMax       int     `json:"y_max"`
	} `json:"predictions"`
}

func (d *DeepStack) Normalize(camera string, raw RawResponse) ([]models.NormalizedFace, error) {
	var body deepstackBody
	if err := json.Unmarshal(raw.Body, &body); err != nil {
		return nil, &ProtocolError{Detector: d.Name(), Reason: fmt.Sprintf("unparseable body: %v", err)}
	}
	if body.Success == nil || !*body.Success {
		reason := body.Error
		if reason == "" {
			reason = "response missing success flag"
		}
		return nil, &ProtocolError{Detector: d.Name(), Reason: reason}
	}
	if body.Predictions == nil {
		return nil, &ProtocolError{Detector: d.Name(), Reason: "response missing predictions"}
	}

	settings := d.detect(camera)
	faces := make([]models.NormalizedFace, 0, len(body.Predictions))
	for _, p := range body.Predictions {
		face := models.NormalizedFace{
			Name:       strings.ToLower(p.UserID),
			Confidence: ptr(round2(p.Confidence * 100)),
			Box: models.Box{
				Top:    p.YMin,
				Left:   p.XMin,
				Width:  p.XMax - p.XMin,
				Height: p.YMax - p.YMin,
			},
		}
		hasIdentity := p.UserID != "" && !strings.EqualFold(p.UserID, Unknown)
		applyMatchPolicy(&face, hasIdentity, settings)
		faces = append(faces, face)
	}
	return faces, nil
}
