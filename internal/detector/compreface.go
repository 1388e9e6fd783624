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

// codeNoFacesFound is CompreFace's application code for a frame containing
// no detectable face. It is a valid empty result, not an error.
const codeNoFacesFound = 28

// CompreFace integrates the CompreFace recognition service.
type CompreFace struct {
	cfg      config.CompreFaceConfig
	detect   PolicyResolver
	client   *http.Client
	requests atomic.Int64
}

func NewCompreFace(cfg config.CompreFaceConfig, detect PolicyResolver) *CompreFace {
	return &CompreFace{
		cfg:    cfg,
		detect: detect,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *CompreFace) Name() string { return "compreface" }

func (c *CompreFace) Timeout() time.Duration { return c.cfg.Timeout }

// Requests returns the number of recognition calls issued, for diagnostics.
func (c *CompreFace) Requests() int64 { return c.requests.Load() }

func (c *CompreFace) Recognize(ctx context.Context, image []byte) (RawResponse, error) {
	c.requests.Add(1)

	body, contentType, err := multipartImage("file", image)
	if err != nil {
		return RawResponse{}, fmt.Errorf("encode form: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/recognition/recognize?face_plugins=%s&det_prob_threshold=%v",
		strings.TrimRight(c.cfg.URL, "/"), c.cfg.FacePlugins, c.cfg.DetProbThreshold)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return RawResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-api-key", c.cfg.Key)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return RawResponse{}, &UnavailableError{Detector: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawResponse{}, &UnavailableError{Detector: c.Name(), Err: err}
	}

	return RawResponse{
		Detector: c.Name(),
		Status:   resp.StatusCode,
		Body:     data,
		Elapsed:  time.Since(start),
	}, nil
}

func (c *CompreFace) Train(ctx context.Context, name string, image []byte) (json.RawMessage, error) {
	body, contentType, err := multipartImage("file", image)
	if err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/recognition/faces?subject=%s", strings.TrimRight(c.cfg.URL, "/"), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-api-key", c.cfg.Key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Detector: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Detector: c.Name(), Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &UnavailableError{Detector: c.Name(),
			Err: fmt.Errorf("train returned status %d: %s", resp.StatusCode, data)}
	}
	return data, nil
}

// Remove deletes every sample registered under the subject name. An
// "already absent" response is tolerated.
func (c *CompreFace) Remove(ctx context.Context, refs RemoveRefs) error {
	url := fmt.Sprintf("%s/api/v1/recognition/faces?subject=%s", strings.TrimRight(c.cfg.URL, "/"), refs.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.Key)

	resp, err := c.client.Do(req)
	if err != nil {
		return &UnavailableError{Detector: c.Name(), Err: err}
	}
	resp.Body.Close()
	return nil
}

type comprefaceBody struct {
	Result  []comprefaceResult `json:"result"`
	Code    int                `json:"code"`
	Message string             `json:"message"`
}

type comprefaceResult struct {
	Subjects []struct {
		Subject    string  `json:"subject"`
		Similarity float64 `json:"similarity"`
	} `json:"subjects"`
	Box struct {
		XMin int `json:"x_min"`
		YMin int `json:"y_min"`
		XMax int `json:"x_max"`
		YMax int `json:"y_max"`
	} `json:"box"`
	Age *struct {
		Low         int     `json:"low"`
		High        int     `json:"high"`
		Probability float64 `json:"probability"`
	} `json:"age"`
	Gender *struct {
		Value       string  `json:"value"`
		Probability float64 `json:"probability"`
	} `json:"gender"`
	Mask *struct {
		Value       string  `json:"value"`
		Probability float64 `json:"probability"`
	} `json:"mask"`
	Pose json.RawMessage `json:"pose"`
}

func (c *CompreFace) Normalize(camera string, raw RawResponse) ([]models.NormalizedFace, error) {
	var body comprefaceBody
	if err := json.Unmarshal(raw.Body, &body); err != nil {
		return nil, &ProtocolError{Detector: c.Name(), Reason: fmt.Sprintf("unparseable body: %v", err)}
	}
	if body.Result == nil {
		if body.Code == codeNoFacesFound {
			return []models.NormalizedFace{}, nil
		}
		return nil, &ProtocolError{Detector: c.Name(), Reason: body.Message}
	}

	settings := c.detect(camera)
	faces := make([]models.NormalizedFace, 0, len(body.Result))
	for _, r := range body.Result {
		face := models.NormalizedFace{
			Name:       Unknown,
			Confidence: ptr(0),
			Box: models.Box{
				Top:    r.Box.YMin,
				Left:   r.Box.XMin,
				Width:  r.Box.XMax - r.Box.XMin,
				Height: r.Box.YMax - r.Box.YMin,
			},
		}
		hasIdentity := len(r.Subjects) > 0
		if hasIdentity {
			face.Name = strings.ToLower(r.Subjects[0].Subject)
			face.Confidence = ptr(round2(r.Subjects[0].Similarity * 100))
		}
		if r.Age != nil {
			face.Age = &models.AgeRange{
				Low:         r.Age.Low,
				High:        r.Age.High,
				Probability: round2(r.Age.Probability * 100),
			}
		}
		if r.Gender != nil {
			face.Gender = &models.Attribute{
				Value:       r.Gender.Value,
				Probability: round2(r.Gender.Probability * 100),
			}
		}
		if r.Mask != nil {
			face.Mask = &models.Attribute{
				Value:       r.Mask.Value,
				Probability: round2(r.Mask.Probability * 100),
			}
		}
		if len(r.Pose) > 0 {
			face.Pose = r.Pose
		}
		applyMatchPolicy(&face, hasIdentity, settings)
		faces = append(faces, face)
	}
	return faces, nil
}

// multipartImage builds a single-field multipart form carrying an image.
func multipartImage(field string, image []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile(field, "image.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
