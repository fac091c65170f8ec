package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/printmint/cardpress/internal/apperr"
	"github.com/printmint/cardpress/internal/config"
	"github.com/printmint/cardpress/internal/fal"
	"github.com/printmint/cardpress/internal/models"
	"github.com/printmint/cardpress/internal/pricing"
)

type creditLedger interface {
	Ensure(ctx context.Context, id, email string, startingCredits int) (*models.User, bool, error)
	GetCredits(ctx context.Context, id string) (int, error)
	ConsumeCredits(ctx context.Context, id string, cost int) (bool, error)
	AddCredits(ctx context.Context, id string, delta int) error
}

type imageStore interface {
	Save(ctx context.Context, meta *models.ImageMetadata) (*models.ImageMetadata, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]models.ImageMetadata, error)
}

type imageGenerator interface {
	Generate(ctx context.Context, opts fal.GenerateOptions) (*fal.Result, error)
	Download(ctx context.Context, imageURL string) ([]byte, string, error)
}

type imageUploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type tierResolver interface {
	Resolve(ctx context.Context, user *models.User, accessToken string) (models.MembershipTier, error)
}

type GenerationService struct {
	cfg        config.Config
	log        *slog.Logger
	ledger     creditLedger
	images     imageStore
	generator  imageGenerator
	uploader   imageUploader
	membership tierResolver
}

type GenerationRequest struct {
	UserID      string
	Email       string
	AccessToken string
	Prompt      string
	ImageSize   string // "WxH"
}

type GenerationResult struct {
	ImageURL         string `json:"imageUrl"`
	StorageURL       string `json:"storageUrl"`
	CreditsUsed      int    `json:"creditsUsed"`
	RemainingCredits int    `json:"remainingCredits"`
}

func NewGenerationService(cfg config.Config, log *slog.Logger, ledger creditLedger, images imageStore, generator imageGenerator, uploader imageUploader, membership tierResolver) *GenerationService {
	return &GenerationService{
		cfg:        cfg,
		log:        log,
		ledger:     ledger,
		images:     images,
		generator:  generator,
		uploader:   uploader,
		membership: membership,
	}
}

// Generate runs the metered generation flow: price the request, reserve
// credits with one atomic conditional decrement, call the provider, store the
// image durably and record its metadata. The reservation is refunded if the
// provider or the upload fails.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, apperr.Validation("prompt is required and must be a non-empty string")
	}
	width, height, err := s.parseImageSize(req.ImageSize)
	if err != nil {
		return nil, err
	}

	user, _, err := s.ledger.Ensure(ctx, req.UserID, req.Email, s.cfg.StartingCredits)
	if err != nil {
		return nil, err
	}

	cost := pricing.CreditCost(width, height, s.cfg.CreditRatePerMegapixel)

	// Refresh membership grants before authorizing; a provider outage here
	// must not block generation for users who still have balance.
	if _, err := s.membership.Resolve(ctx, user, req.AccessToken); err != nil {
		s.log.Warn("membership resolve failed, using current balance", "user", user.ID, "err", err)
	}

	ok, err := s.ledger.ConsumeCredits(ctx, user.ID, cost)
	if err != nil {
		return nil, err
	}
	if !ok {
		available, balErr := s.ledger.GetCredits(ctx, user.ID)
		if balErr != nil {
			s.log.Error("read balance after rejected consume", "user", user.ID, "err", balErr)
		}
		return nil, apperr.InsufficientCredits(cost, available)
	}

	result, err := s.generator.Generate(ctx, fal.GenerateOptions{
		Prompt: prompt,
		Width:  width,
		Height: height,
	})
	if err != nil {
		s.refund(ctx, user.ID, cost)
		return nil, err
	}

	data, contentType, err := s.generator.Download(ctx, result.ImageURL)
	if err != nil {
		s.refund(ctx, user.ID, cost)
		return nil, err
	}
	if contentType == "" {
		contentType = result.ContentType
	}

	storageURL, err := s.uploader.Upload(ctx, data, contentType)
	if err != nil {
		s.refund(ctx, user.ID, cost)
		return nil, apperr.UpstreamUnavailable(fmt.Errorf("store image: %w", err))
	}

	if _, err := s.images.Save(ctx, &models.ImageMetadata{
		UserID:       user.ID,
		Prompt:       prompt,
		ImageURL:     result.ImageURL,
		StorageURL:   storageURL,
		Seed:         result.Seed,
		Width:        result.Width,
		Height:       result.Height,
		ContentType:  contentType,
		HasNsfwFlags: result.NsfwFlags,
		FullResult:   result.Raw,
	}); err != nil {
		// The user has their image and was charged correctly; losing the
		// gallery row is not worth failing the request over.
		s.log.Error("save image metadata", "user", user.ID, "err", err)
	}

	remaining, err := s.ledger.GetCredits(ctx, user.ID)
	if err != nil {
		s.log.Error("read remaining balance", "user", user.ID, "err", err)
	}

	return &GenerationResult{
		ImageURL:         result.ImageURL,
		StorageURL:       storageURL,
		CreditsUsed:      cost,
		RemainingCredits: remaining,
	}, nil
}

// ListImages returns the user's recent generations, newest first.
func (s *GenerationService) ListImages(ctx context.Context, userID string, limit int) ([]models.ImageMetadata, error) {
	return s.images.ListRecent(ctx, userID, limit)
}

func (s *GenerationService) refund(ctx context.Context, userID string, cost int) {
	if cost == 0 {
		return
	}
	if err := s.ledger.AddCredits(ctx, userID, cost); err != nil {
		s.log.Error("refund after failed generation", "user", userID, "cost", cost, "err", err)
	}
}

func (s *GenerationService) parseImageSize(spec string) (int, int, error) {
	wPart, hPart, ok := strings.Cut(strings.ToLower(strings.TrimSpace(spec)), "x")
	if !ok {
		return 0, 0, apperr.Validation(`imageSize must be "WxH", e.g. "1024x576"`)
	}
	width, err := strconv.Atoi(wPart)
	if err != nil || width <= 0 {
		return 0, 0, apperr.Validation("image width must be a positive integer")
	}
	height, err := strconv.Atoi(hPart)
	if err != nil || height <= 0 {
		return 0, 0, apperr.Validation("image height must be a positive integer")
	}
	if width > s.cfg.MaxImageDimension || height > s.cfg.MaxImageDimension {
		return 0, 0, apperr.Validation(fmt.Sprintf("image dimensions must not exceed %d pixels", s.cfg.MaxImageDimension))
	}
	return width, height, nil
}
