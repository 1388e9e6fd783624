package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/rekognition"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

// Rekognition integrates AWS Rekognition collections. Trained face ids are
// resolved back to names through the lookup injected at construction, keeping
// Normalize free of I/O.
type Rekognition struct {
	cfg      config.RekognitionConfig
	detect   PolicyResolver
	lookup   FaceNameLookup
	client   *rekognition.Rekognition
	requests atomic.Int64
}

func NewRekognition(cfg config.RekognitionConfig, detect PolicyResolver, lookup FaceNameLookup) *Rekognition {
	sess := session.Must(session.NewSession(&aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}))
	return &Rekognition{
		cfg:    cfg,
		detect: detect,
		lookup: lookup,
		client: rekognition.New(sess),
	}
}

func (r *Rekognition) Name() string { return "rekognition" }

func (r *Rekognition) Timeout() time.Duration { return r.cfg.Timeout }

// Requests returns the number of AWS calls issued, for diagnostics.
func (r *Rekognition) Requests() int64 { return r.requests.Load() }

// EnsureCollection creates the configured collection if it does not exist.
func (r *Rekognition) EnsureCollection(ctx context.Context) error {
	r.requests.Add(1)
	_, err := r.client.DescribeCollectionWithContext(ctx, &rekognition.DescribeCollectionInput{
		CollectionId: aws.String(r.cfg.CollectionID),
	})
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == rekognition.ErrCodeResourceNotFoundException {
		r.requests.Add(1)
		_, err = r.client.CreateCollectionWithContext(ctx, &rekognition.CreateCollectionInput{
			CollectionId: aws.String(r.cfg.CollectionID),
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		return nil
	}
	return fmt.Errorf("describe collection: %w", err)
}

// sourceDims carries the searched image's pixel dimensions so Normalize can
// scale Rekognition's relative bounding boxes.
type sourceDims struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r *Rekognition) Recognize(ctx context.Context, img []byte) (RawResponse, error) {
	r.requests.Add(1)

	dims := sourceDims{}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(img)); err == nil {
		dims.Width = cfg.Width
		dims.Height = cfg.Height
	}

	start := time.Now()
	out, err := r.client.SearchFacesByImageWithContext(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId: aws.String(r.cfg.CollectionID),
		Image:        &rekognition.Image{Bytes: img},
	})
	if err != nil {
		// "no faces in the image" is a valid empty result for this vendor.
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == rekognition.ErrCodeInvalidParameterException {
			body, _ := json.Marshal(struct {
				*rekognition.SearchFacesByImageOutput
				Source sourceDims `json:"source"`
			}{&rekognition.SearchFacesByImageOutput{}, dims})
			return RawResponse{Detector: r.Name(), Status: 200, Body: body, Elapsed: time.Since(start)}, nil
		}
		return RawResponse{}, &UnavailableError{Detector: r.Name(), Err: err}
	}

	body, err := json.Marshal(struct {
		*rekognition.SearchFacesByImageOutput
		Source sourceDims `json:"source"`
	}{out, dims})
	if err != nil {
		return RawResponse{}, fmt.Errorf("marshal response: %w", err)
	}

	return RawResponse{
		Detector: r.Name(),
		Status:   200,
		Body:     body,
		Elapsed:  time.Since(start),
	}, nil
}

func (r *Rekognition) Train(ctx context.Context, name string, img []byte) (json.RawMessage, error) {
	r.requests.Add(1)
	out, err := r.client.IndexFacesWithContext(ctx, &rekognition.IndexFacesInput{
		CollectionId:    aws.String(r.cfg.CollectionID),
		ExternalImageId: aws.String(name),
		Image:           &rekognition.Image{Bytes: img},
	})
	if err != nil {
		return nil, &UnavailableError{Detector: r.Name(), Err: err}
	}
	meta, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal training meta: %w", err)
	}
	return meta, nil
}

// Remove deletes the given face ids from the collection. Missing ids are
// tolerated; a call without ids is a no-op.
func (r *Rekognition) Remove(ctx context.Context, refs RemoveRefs) error {
	if len(refs.FaceIDs) == 0 {
		return nil
	}
	r.requests.Add(1)
	_, err := r.client.DeleteFacesWithContext(ctx, &rekognition.DeleteFacesInput{
		CollectionId: aws.String(r.cfg.CollectionID),
		FaceIds:      aws.StringSlice(refs.FaceIDs),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == rekognition.ErrCodeResourceNotFoundException {
			return nil
		}
		return &UnavailableError{Detector: r.Name(), Err: err}
	}
	return nil
}

type rekognitionBody struct {
	FaceMatches []struct {
		Similarity float64 `json:"Similarity"`
		Face       struct {
			FaceId string `json:"FaceId"`
		} `json:"Face"`
	} `json:"FaceMatches"`
	SearchedFaceBoundingBox *struct {
		Top    float64 `json:"Top"`
		Left   float64 `json:"Left"`
		Width  float64 `json:"Width"`
		Height float64 `json:"Height"`
	} `json:"SearchedFaceBoundingBox"`
	Source sourceDims `json:"source"`
}

func (r *Rekognition) Normalize(camera string, raw RawResponse) ([]models.NormalizedFace, error) {
	var body rekognitionBody
	if err := json.Unmarshal(raw.Body, &body); err != nil {
		return nil, &ProtocolError{Detector: r.Name(), Reason: fmt.Sprintf("unparseable body: %v", err)}
	}

	settings := r.detect(camera)

	var box models.Box
	if bb := body.SearchedFaceBoundingBox; bb != nil {
		box = models.Box{
			Top:    int(bb.Top * float64(body.Source.Height)),
			Left:   int(bb.Left * float64(body.Source.Width)),
			Width:  int(bb.Width * float64(body.Source.Width)),
			Height: int(bb.Height * float64(body.Source.Height)),
		}
	}

	faces := make([]models.NormalizedFace, 0, len(body.FaceMatches))
	for _, m := range body.FaceMatches {
		name, found := r.lookup(m.Face.FaceId)
		face := models.NormalizedFace{
			Name:       Unknown,
			Confidence: ptr(round2(m.Similarity)),
			Box:        box,
		}
		if found {
			face.Name = name
		}
		applyMatchPolicy(&face, found, settings)
		faces = append(faces, face)
	}

	// A searched face with no collection match is still a detection the UI
	// should render; it carries no confidence at all.
	if len(faces) == 0 && body.SearchedFaceBoundingBox != nil {
		face := models.NormalizedFace{
			Name:       Unknown,
			Confidence: nil,
			Box:        box,
		}
		applyMatchPolicy(&face, false, settings)
		faces = append(faces, face)
	}
	return faces, nil
}
