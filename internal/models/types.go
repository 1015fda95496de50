package models

// ServerStatus represents the link state of an agent's server record
type ServerStatus string

const (
	ServerStatusPending ServerStatus = "pending"
	ServerStatusLinked  ServerStatus = "linked"
)

// MediaType represents the kind of file an agent reported
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
)

// TMDBType maps a media type onto the TMDB namespace it is searched in
func (t MediaType) TMDBType() TMDBType {
	if t == MediaTypeEpisode {
		return TMDBTypeTV
	}
	return TMDBTypeMovie
}

// MediaStatus represents the indexing state of a media record
type MediaStatus string

const (
	MediaStatusIndexed MediaStatus = "indexed"
)

// TMDBType is the TMDB namespace a title was resolved in
type TMDBType string

const (
	TMDBTypeMovie TMDBType = "movie"
	TMDBTypeTV    TMDBType = "tv"
)
