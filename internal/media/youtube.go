package media

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Video is the metadata of one upload.
type Video struct {
	Path        string
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
}

// Uploader publishes rendered videos.
type Uploader interface {
	Upload(ctx context.Context, v Video) (string, error)
	SetThumbnail(ctx context.Context, videoID, path string) error
}

// YouTube uploads through the YouTube Data API v3.
type YouTube struct {
	service *youtube.Service
}

// NewYouTube authenticates with a service account or OAuth credentials file.
func NewYouTube(ctx context.Context, credentialsFile string) (*YouTube, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube client: %w", err)
	}
	return &YouTube{service: svc}, nil
}

// Upload returns the id of the new video.
func (y *YouTube) Upload(ctx context.Context, v Video) (string, error) {
	f, err := os.Open(v.Path)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	privacy := v.Privacy
	if privacy == "" {
		privacy = "private"
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       v.Title,
			Description: v.Description,
			Tags:        v.Tags,
			CategoryId:  v.CategoryID,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: privacy},
	}

	resp, err := y.service.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	return resp.Id, nil
}

func (y *YouTube) SetThumbnail(ctx context.Context, videoID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open thumbnail: %w", err)
	}
	defer f.Close()

	if _, err := y.service.Thumbnails.Set(videoID).Media(f).Context(ctx).Do(); err != nil {
		return fmt.Errorf("set thumbnail: %w", err)
	}
	return nil
}
