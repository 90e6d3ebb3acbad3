package model

import "time"

// Video represents a row of the `video` catalog.  A video is either an
// external link (URL) or backed by an uploaded file in `video_archivo`.
type Video struct {
    ID        int64     `json:"id_video"`
    Goal      string    `json:"objetivo"`
    Title     string    `json:"titulo"`
    URL       *string   `json:"video_url"`
    HasFile   bool      `json:"has_file"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

// VideoFile is the stored binary of an uploaded video.
type VideoFile struct {
    VideoID   int64
    Filename  string
    MimeType  string
    SizeBytes int64
    Data      []byte
}

// Assignment links a video to a client (`video_asignacion`), with an
// optional note from the therapist.
type Assignment struct {
    ID        int64      `json:"id"`
    VideoID   int64      `json:"id_video"`
    UserID    int64      `json:"id_usuario"`
    Note      *string    `json:"observacion"`
    CreatedAt time.Time  `json:"created_at"`
    UpdatedAt *time.Time `json:"updated_at"`

    Title string `json:"titulo,omitempty"`
    Goal  string `json:"objetivo,omitempty"`
}

// Image is a stored picture: an avatar or an appointment attachment.
type Image struct {
    ID        int64
    OwnerID   int64 // usuario_id for avatars, id_cita for attachments
    Data      []byte
    CreatedAt time.Time
}
