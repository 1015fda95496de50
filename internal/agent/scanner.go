package agent

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/utils"
)

// Media types understood by agentIngest
const (
	TypeMovie   = "movie"
	TypeEpisode = "episode"
)

var mediaExtensions = map[string]bool{
	".mkv": true,
	".mp4": true,
}

// Scanner walks media folders and builds catalog items
type Scanner struct {
	ignore *utils.IgnoreList
	now    func() time.Time
	logger *logrus.Logger
}

// NewScanner creates a new scanner; ignore may be nil
func NewScanner(ignore *utils.IgnoreList, logger *logrus.Logger) *Scanner {
	return &Scanner{
		ignore: ignore,
		now:    time.Now,
		logger: logger,
	}
}

// Scan builds a catalog from the movies and TV folders. An empty path is
// skipped; an unreadable folder is logged and skipped.
func (s *Scanner) Scan(moviesPath, tvPath string) *Catalog {
	items := s.scanDir(moviesPath, TypeMovie)
	items = append(items, s.scanDir(tvPath, TypeEpisode)...)

	return &Catalog{
		Items:     items,
		ScannedAt: s.now().UTC(),
	}
}

func (s *Scanner) scanDir(root, mediaType string) []Item {
	items := []Item{}
	if root == "" {
		return items
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if ignored, term := s.ignore.IsIgnored(path); ignored {
			s.logger.WithFields(logrus.Fields{"path": path, "term": term}).Debug("Ignored")
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !mediaExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to stat media file")
			return nil
		}

		items = append(items, s.buildItem(path, info, mediaType))
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("root", root).Warn("Failed to scan directory")
	}

	return items
}

func (s *Scanner) buildItem(path string, info fs.FileInfo, mediaType string) Item {
	filename := filepath.Base(path)
	item := Item{
		Title:    utils.TitleFromFilename(filename),
		Filename: filename,
		Path:     path,
		Type:     mediaType,
		Size:     info.Size(),
		// Duration is not probed
		Duration: 1,
		AddedAt:  info.ModTime().UTC().Format(time.RFC3339),
	}
	if item.Size <= 0 {
		item.Size = 1
	}

	if year := utils.ExtractYear(filename); year > 0 {
		item.Year = &year
	}
	if mediaType == TypeEpisode {
		item.Season, item.Episode = utils.ParseSeasonEpisode(filename)
	}

	return item
}
