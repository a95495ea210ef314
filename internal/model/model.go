package model

import "time"

// AllVideos is the scope marker granting access to the whole catalog.
const AllVideos = "*"

// AccessToken is a sharing code stored in the tokens table, keyed by Code.
// CurrentDownloads is the only field that changes after creation.
type AccessToken struct {
	Code             string    `json:"code" dynamodbav:"code"`
	ExpiresAt        time.Time `json:"expiresAt" dynamodbav:"expires_at"`
	MaxDownloads     int       `json:"maxDownloads" dynamodbav:"max_downloads"`
	CurrentDownloads int       `json:"currentDownloads" dynamodbav:"current_downloads"`
	AllowedVideos    string    `json:"allowedVideos" dynamodbav:"allowed_videos"` // "*" or a JSON array of video ids
	Description      string    `json:"description,omitempty" dynamodbav:"description"`
	CreatedAt        time.Time `json:"createdAt" dynamodbav:"created_at"`
	CreatedBy        string    `json:"createdBy" dynamodbav:"created_by"`
	Version          string    `json:"-" dynamodbav:"version"`
}

// VideoRecord is catalog metadata for one uploaded video object.
type VideoRecord struct {
	VideoID       string    `json:"videoId" dynamodbav:"video_id"`
	Title         string    `json:"title" dynamodbav:"title"`
	Description   string    `json:"description,omitempty" dynamodbav:"description"`
	FileName      string    `json:"fileName" dynamodbav:"file_name"` // object key in the video bucket
	FileSize      int64     `json:"fileSize" dynamodbav:"file_size"`
	UploadDate    time.Time `json:"uploadDate" dynamodbav:"upload_date"`
	UploadedBy    string    `json:"uploadedBy" dynamodbav:"uploaded_by"`
	DownloadCount int       `json:"downloadCount" dynamodbav:"download_count"`
	Version       string    `json:"-" dynamodbav:"version"`
}

// UsageRecord is one ledger entry per successful redemption. Immutable.
type UsageRecord struct {
	ID         string    `json:"id" dynamodbav:"id"`
	Code       string    `json:"code" dynamodbav:"code"`
	VideoID    string    `json:"videoId" dynamodbav:"video_id"`
	RedeemedAt time.Time `json:"redeemedAt" dynamodbav:"redeemed_at"`
	Origin     string    `json:"origin,omitempty" dynamodbav:"origin"` // sealed at rest
}
