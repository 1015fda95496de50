package models

import "time"

// MediaRecord represents one distinct file reported by one agent.
// Stored at users/{uid}/media/{mediaId}.
type MediaRecord struct {
	DocPath  string    `json:"docPath" boltholdKey:"DocPath"`
	MediaID  string    `json:"mediaId"`
	OwnerUID string    `json:"ownerUid" boltholdIndex:"OwnerUID"`
	ServerID string    `json:"serverId"`
	Title    string    `json:"title"`
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Type     MediaType `json:"type"`

	Season      *int    `json:"season"`
	Episode     *int    `json:"episode"`
	Year        *int    `json:"year"`
	Size        int64   `json:"size"`
	Duration    float64 `json:"duration"`
	Codec       *string `json:"codec"`
	PosterURL   *string `json:"posterUrl"`
	BackdropURL *string `json:"backdropUrl"`
	TMDBID      *int    `json:"tmdbId"`

	Status    MediaStatus `json:"status"`
	AddedAt   *time.Time  `json:"addedAt"`
	UpdatedAt time.Time   `json:"updatedAt"`

	// Playback aggregates
	PlayCount      int        `json:"playCount"`
	LastFinishedAt *time.Time `json:"lastFinishedAt"`

	// Enrichment fields
	TMDBType     *TMDBType `json:"tmdbType"`
	Overview     *string   `json:"overview"`
	Genres       []string  `json:"genres"`
	ReleaseDate  *string   `json:"releaseDate"`
	FirstAirDate *string   `json:"firstAirDate"`
	VoteAverage  *float64  `json:"voteAverage"`
	Language     *string   `json:"language"`
}

// HasArtwork reports whether the record carries a poster or backdrop
func (m *MediaRecord) HasArtwork() bool {
	return (m.PosterURL != nil && *m.PosterURL != "") || (m.BackdropURL != nil && *m.BackdropURL != "")
}

// MediaUpsert is the merge payload an agent ingest writes for one item.
// Nil optional fields are written as explicit nulls.
type MediaUpsert struct {
	MediaID     string
	ServerID    string
	Title       string
	Filename    string
	Path        string
	Type        MediaType
	Season      *int
	Episode     *int
	Year        *int
	Size        int64
	Duration    float64
	Codec       *string
	PosterURL   *string
	BackdropURL *string
	TMDBID      *int
	AddedAt     *time.Time
}

// ApplyUpsert merges an ingest payload into the record. AddedAt is only
// written when the payload carries one; playback aggregates and enrichment
// fields are left untouched.
func (m *MediaRecord) ApplyUpsert(u *MediaUpsert, now time.Time) {
	m.MediaID = u.MediaID
	m.ServerID = u.ServerID
	m.Title = u.Title
	m.Filename = u.Filename
	m.Path = u.Path
	m.Type = u.Type
	m.Season = u.Season
	m.Episode = u.Episode
	m.Year = u.Year
	m.Size = u.Size
	m.Duration = u.Duration
	m.Codec = u.Codec
	m.PosterURL = u.PosterURL
	m.BackdropURL = u.BackdropURL
	m.TMDBID = u.TMDBID
	m.Status = MediaStatusIndexed
	m.UpdatedAt = now
	if u.AddedAt != nil {
		added := *u.AddedAt
		m.AddedAt = &added
	}
}

// PlaybackRecord tracks in-progress playback of one media item.
// Stored at users/{uid}/playback/{mediaId}; deleted once finished.
type PlaybackRecord struct {
	DocPath      string    `json:"docPath" boltholdKey:"DocPath"`
	MediaID      string    `json:"mediaId"`
	LastPosition float64   `json:"lastPosition"`
	Duration     float64   `json:"duration"`
	LastPlayedAt time.Time `json:"lastPlayedAt"`
}
