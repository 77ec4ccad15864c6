// Package state tracks per-owner crawl progress in a small JSON file inside
// the owner's output directory, so an interrupted run can resume from its
// last cursor.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const metaFilename = "__host_meta.json"

// Offset is the pagination cursor as last reported by the feed.
type Offset struct {
	Offset         string `json:"offset"`
	UpdateBaseline string `json:"update_baseline"`
	UpdateNum      int64  `json:"update_num"`
}

// Meta is the persisted crawl state of one owner.
type Meta struct {
	HostMID       string `json:"host_mid"`
	LastFetchTime int64  `json:"last_fetch_time"`
	LastOffset    Offset `json:"last_offset"`
	FullyFetched  bool   `json:"fully_fetched"`
}

// Load reads the owner's crawl state from hostDir. A missing or unreadable
// file yields pristine defaults; a partial file keeps defaults for the fields
// it omits.
func Load(hostDir, hostMID string) Meta {
	m := Meta{HostMID: hostMID}
	b, err := os.ReadFile(filepath.Join(hostDir, metaFilename))
	if err != nil {
		return m
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{HostMID: hostMID}
	}
	if m.HostMID == "" {
		m.HostMID = hostMID
	}
	return m
}

// Save writes the crawl state into hostDir, creating it if needed.
func (m Meta) Save(hostDir string) error {
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(hostDir, metaFilename), b, 0644)
}
