package torrent

import (
	"bytes"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/vadimtrunov/torrentdeck/internal/core"
)

// maxMetainfoSize bounds uploaded .torrent files.
const maxMetainfoSize = 10 << 20

func validateHash(hash string) error {
	if hash == "" {
		return core.NewValidationError("empty torrent hash")
	}
	for _, r := range hash {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '|' || r == ',' || r == '/' {
			return core.NewValidationError("invalid character %q in hash %q", r, hash)
		}
	}
	return nil
}

func validateHashes(hashes []string) error {
	if len(hashes) == 0 {
		return core.NewValidationError("no torrents given")
	}
	for _, h := range hashes {
		if err := validateHash(h); err != nil {
			return err
		}
	}
	return nil
}

func validateTags(tags []string) error {
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			return core.NewValidationError("empty tag")
		}
		if strings.ContainsAny(t, ",\n\r") {
			return core.NewValidationError("tag %q contains a comma or newline", t)
		}
	}
	return nil
}

func validateDestination(dest string, required bool) error {
	if dest == "" {
		if required {
			return core.NewValidationError("destination is required")
		}
		return nil
	}
	if !path.IsAbs(dest) {
		return core.NewValidationError("destination %q must be an absolute path", dest)
	}
	if strings.ContainsAny(dest, "\x00\n\r") {
		return core.NewValidationError("destination contains control characters")
	}
	return nil
}

// ValidateURL accepts magnet links with a BitTorrent info hash and absolute
// http(s) URLs.
func ValidateURL(raw string) error {
	if strings.HasPrefix(raw, "magnet:") {
		if _, err := metainfo.ParseMagnetUri(raw); err != nil {
			return core.NewValidationError("invalid magnet link: %v", err)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return core.NewValidationError("%q is neither a magnet link nor an http(s) URL", raw)
	}
	return nil
}

// InfoHash parses .torrent contents and returns the hex info hash. It fails
// for data that is not bencoded metainfo with a decodable info dictionary.
func InfoHash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", core.NewValidationError("empty torrent file")
	}
	if len(data) > maxMetainfoSize {
		return "", core.NewValidationError("torrent file exceeds %d bytes", maxMetainfoSize)
	}
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", core.NewValidationError("invalid torrent file: %v", err)
	}
	if _, err := mi.UnmarshalInfo(); err != nil {
		return "", core.NewValidationError("invalid info dictionary: %v", err)
	}
	return mi.HashInfoBytes().HexString(), nil
}

func validateAdd(opts core.AddOptions) error {
	if len(opts.URLs) == 0 {
		return core.NewValidationError("no URLs given")
	}
	for _, u := range opts.URLs {
		if err := ValidateURL(u); err != nil {
			return err
		}
	}
	if err := validateDestination(opts.Destination, false); err != nil {
		return err
	}
	return validateTags(opts.Tags)
}

func validateAddFile(opts core.AddFileOptions) error {
	if len(opts.Files) == 0 {
		return core.NewValidationError("no files given")
	}
	for _, data := range opts.Files {
		if _, err := InfoHash(data); err != nil {
			return err
		}
	}
	if err := validateDestination(opts.Destination, false); err != nil {
		return err
	}
	return validateTags(opts.Tags)
}

func validateMove(opts core.MoveOptions) error {
	if err := validateHashes(opts.Hashes); err != nil {
		return err
	}
	return validateDestination(opts.Destination, true)
}

func validateIndices(indices []int) error {
	if len(indices) == 0 {
		return core.NewValidationError("no file indices given")
	}
	for _, i := range indices {
		if i < 0 {
			return core.NewValidationError("negative file index %d", i)
		}
	}
	return nil
}
