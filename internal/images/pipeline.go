package images

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/image/draw"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// DefaultDedupTypes are cam types whose frames carry no capture time of their
// own, so an unchanged upstream image can only be detected by content.
var DefaultDedupTypes = []string{"qa", "wa", "cgc", "ch", "cwu", "ap", "hutt", "ts", "snowgrass", "static"}

// Store is the persistence the pipeline needs.
type Store interface {
	GetCam(ctx context.Context, id uuid.UUID) (weather.Cam, error)
	LatestImage(ctx context.Context, camID uuid.UUID) (weather.Image, error)
	AddCamImage(ctx context.Context, cam weather.Cam, img weather.Image) error
	GetSounding(ctx context.Context, id uuid.UUID) (weather.Sounding, error)
	AppendSoundingImages(ctx context.Context, s weather.Sounding, imgs []weather.Image) error
}

// Storage writes image files.
type Storage interface {
	Save(ctx context.Context, rel string, data []byte) error
}

// Config controls resizing and dedup.
type Config struct {
	// MaxWidth is the width images are scaled down to. Zero uses 600.
	MaxWidth int
	// Quality is the JPEG quality for cam images. Zero uses 80.
	Quality int
	// DedupTypes lists cam types checked for unchanged content.
	DedupTypes []string
}

// Pipeline dedups, resizes and stores webcam and sounding images.
type Pipeline struct {
	store Store
	files Storage
	cfg   Config
	now   func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(store Store, files Storage, cfg Config) *Pipeline {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 600
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 80
	}
	if cfg.DedupTypes == nil {
		cfg.DedupTypes = DefaultDedupTypes
	}
	return &Pipeline{store: store, files: files, cfg: cfg, now: time.Now}
}

// Process stores frame as cam's newest image. An empty frame or one whose
// content matches the latest stored image is skipped.
func (p *Pipeline) Process(ctx context.Context, cam weather.Cam, frame weather.CamFrame) error {
	logger := log.With().Str("service", "cam").Str("type", cam.Type).Logger()
	label := cam.Type + " image update skipped"
	if cam.ExternalID != "" {
		label += " - " + cam.ExternalID
	}

	if len(frame.Data) == 0 {
		logger.Info().Msg(label)
		return nil
	}

	img := weather.Image{Time: frame.Time.UTC()}
	if img.Time.IsZero() {
		img.Time = p.now().UTC()
	}

	if slices.Contains(p.cfg.DedupTypes, cam.Type) {
		sum := blake2b.Sum256(frame.Data)
		img.Hash = hex.EncodeToString(sum[:])
		img.FileSize = len(frame.Data)

		latest, err := p.store.LatestImage(ctx, cam.ID)
		switch {
		case err == nil && latest.Hash == img.Hash && latest.FileSize == img.FileSize:
			logger.Info().Msg(label)
			return nil
		case err != nil && !errors.Is(err, weather.ErrNotFound):
			return fmt.Errorf("latest image for %s: %w", cam.ID, err)
		}
	}

	resized, err := p.resize(frame.Data, func(buf *bytes.Buffer, m image.Image) error {
		return jpeg.Encode(buf, m, &jpeg.Options{Quality: p.cfg.Quality})
	})
	if err != nil {
		return fmt.Errorf("resize image for %s: %w", cam.ID, err)
	}

	img.URL = path.Join("cams", cam.Type, cam.ID.String(), img.Time.Format(time.RFC3339)+".jpg")
	if err := p.files.Save(ctx, img.URL, resized); err != nil {
		return err
	}

	cam.LastUpdate = p.now().UTC()
	err = p.store.AddCamImage(ctx, cam, img)
	if errors.Is(err, weather.ErrVersionConflict) {
		fresh, getErr := p.store.GetCam(ctx, cam.ID)
		if getErr != nil {
			return fmt.Errorf("reload cam %s: %w", cam.ID, getErr)
		}
		fresh.LastUpdate = cam.LastUpdate
		err = p.store.AddCamImage(ctx, fresh, img)
	}
	if err != nil {
		return fmt.Errorf("add image to cam %s: %w", cam.ID, err)
	}

	msg := cam.Type + " image updated"
	if cam.ExternalID != "" {
		msg += " - " + cam.ExternalID
	}
	logger.Info().Msg(msg)
	return nil
}

// ProcessSounding stores the day's charts for s in one batch. Frames that
// cannot be decoded are logged and dropped.
func (p *Pipeline) ProcessSounding(ctx context.Context, s weather.Sounding, frames []weather.SoundingFrame) error {
	var imgs []weather.Image
	for _, f := range frames {
		if len(f.Data) == 0 {
			continue
		}

		resized, err := p.resize(f.Data, func(buf *bytes.Buffer, m image.Image) error {
			return png.Encode(buf, m)
		})
		if err != nil {
			log.Warn().Err(err).Str("service", "sounding").
				Msgf("rasp soundings error - %s - %s - %s", s.RaspRegion, s.RaspID, f.Label)
			continue
		}

		rel := path.Join("soundings", s.RaspRegion, s.RaspID, f.Label+".png")
		if err := p.files.Save(ctx, rel, resized); err != nil {
			return err
		}
		imgs = append(imgs, weather.Image{Time: f.Time.UTC(), URL: rel})

		log.Info().Str("service", "sounding").
			Msgf("rasp sounding updated - %s - %s - %s", s.RaspRegion, s.RaspID, f.Label)
	}

	if len(imgs) == 0 {
		return nil
	}
	err := p.store.AppendSoundingImages(ctx, s, imgs)
	if errors.Is(err, weather.ErrVersionConflict) {
		fresh, getErr := p.store.GetSounding(ctx, s.ID)
		if getErr != nil {
			return fmt.Errorf("reload sounding %s: %w", s.ID, getErr)
		}
		err = p.store.AppendSoundingImages(ctx, fresh, imgs)
	}
	if err != nil {
		return fmt.Errorf("append sounding images for %s: %w", s.ID, err)
	}
	return nil
}

// resize decodes data, scales it down to the configured width when wider and
// re-encodes it with encode.
func (p *Pipeline) resize(data []byte, encode func(*bytes.Buffer, image.Image) error) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := src
	b := src.Bounds()
	if b.Dx() > p.cfg.MaxWidth {
		height := b.Dy() * p.cfg.MaxWidth / b.Dx()
		if height < 1 {
			height = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, p.cfg.MaxWidth, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}
