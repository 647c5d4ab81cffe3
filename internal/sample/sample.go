package sample

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Platform identifies the social platform a sample was observed on.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
)

// Valid reports whether the platform is one of the supported values.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTikTok, PlatformInstagram, PlatformYouTube, PlatformTwitter:
		return true
	}
	return false
}

// Key identifies the (promoter, campaign) pair all detection state is
// scoped to.
type Key struct {
	PromoterID string `json:"promoter_id" validate:"required"`
	CampaignID string `json:"campaign_id" validate:"required"`
}

// String returns the canonical storage key form.
func (k Key) String() string {
	return k.PromoterID + ":" + k.CampaignID
}

// EngagementSample is one engagement measurement for a promoter's post.
// Samples are immutable once recorded.
type EngagementSample struct {
	Platform     Platform  `json:"platform" validate:"required"`
	PromoterID   string    `json:"promoter_id" validate:"required"`
	CampaignID   string    `json:"campaign_id" validate:"required"`
	PostID       string    `json:"post_id" validate:"required"`
	ViewCount    int64     `json:"view_count" validate:"gte=0"`
	LikeCount    int64     `json:"like_count" validate:"gte=0"`
	CommentCount int64     `json:"comment_count" validate:"gte=0"`
	ShareCount   int64     `json:"share_count" validate:"gte=0"`
	ObservedAt   time.Time `json:"observed_at" validate:"required"`
}

// Key returns the (promoter, campaign) pair the sample belongs to.
func (s EngagementSample) Key() Key {
	return Key{PromoterID: s.PromoterID, CampaignID: s.CampaignID}
}

var validate = validator.New()

// Validate checks the sample's fields. Invalid samples are rejected
// individually; callers must never abort a whole batch over one sample.
func (s EngagementSample) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid engagement sample: %w", err)
	}
	if !s.Platform.Valid() {
		return fmt.Errorf("invalid engagement sample: unsupported platform %q", s.Platform)
	}
	return nil
}
