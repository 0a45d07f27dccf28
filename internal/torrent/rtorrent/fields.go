package rtorrent

import "strings"

// field maps a property name to its rTorrent getter. arg is the optional
// extra argument (d.get_custom=addtime).
type field struct {
	name   string
	method string
	arg    string
}

// accessor returns the d.multicall form, e.g. "d.get_hash=".
func (f field) accessor() string {
	return f.method + "=" + f.arg
}

// params returns the per-entity call parameters for system.multicall.
func (f field) params(hash string) []any {
	if f.arg == "" {
		return []any{hash}
	}
	return []any{hash, f.arg}
}

const (
	propHash           = "hash"
	propName           = "name"
	propHashChecking   = "isHashChecking"
	propOpen           = "isOpen"
	propActive         = "isActive"
	propComplete       = "complete"
	propUpRate         = "upRate"
	propDownRate       = "downRate"
	propUpTotal        = "upTotal"
	propDownTotal      = "downTotal"
	propBytesDone      = "bytesDone"
	propSizeBytes      = "sizeBytes"
	propRatio          = "ratio"
	propTags           = "tags"
	propPriority       = "priority"
	propDirectory      = "directory"
	propMessage        = "message"
	propPeersConnected = "peersConnected"
	propAddTime        = "addTime"
)

// torrentFields is the accessor list of every torrent query. Row values come
// back positionally aligned to this order.
var torrentFields = []field{
	{name: propHash, method: "d.get_hash"},
	{name: propName, method: "d.get_name"},
	{name: propHashChecking, method: "d.is_hash_checking"},
	{name: propOpen, method: "d.is_open"},
	{name: propActive, method: "d.is_active"},
	{name: propComplete, method: "d.get_complete"},
	{name: propUpRate, method: "d.get_up_rate"},
	{name: propDownRate, method: "d.get_down_rate"},
	{name: propUpTotal, method: "d.get_up_total"},
	{name: propDownTotal, method: "d.get_down_total"},
	{name: propBytesDone, method: "d.get_bytes_done"},
	{name: propSizeBytes, method: "d.get_size_bytes"},
	{name: propRatio, method: "d.get_ratio"},
	{name: propTags, method: "d.get_custom1"},
	{name: propPriority, method: "d.get_priority"},
	{name: propDirectory, method: "d.get_directory"},
	{name: propMessage, method: "d.get_message"},
	{name: propPeersConnected, method: "d.get_peers_connected"},
	{name: propAddTime, method: "d.get_custom", arg: "addtime"},
}

func fieldNames(fields []field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// clientStatFields are the global getters behind GetClientStats.
var clientStatFields = []string{
	"get_up_rate",
	"get_down_rate",
	"get_up_total",
	"get_down_total",
	"get_upload_rate",
	"get_download_rate",
}

// trackerAccessors are the t.multicall getters behind GetTrackers.
var trackerAccessors = []string{"t.get_url=", "t.get_type=", "t.is_enabled="}

// encodeTags joins tags into the d.custom1 representation.
func encodeTags(tags []string) string {
	return strings.Join(tags, ",")
}
