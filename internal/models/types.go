package models

// ServiceType identifies which external service a connection talks to
type ServiceType string

const (
	ServiceRadarr    ServiceType = "radarr"
	ServiceSonarr    ServiceType = "sonarr"
	ServiceBazarr    ServiceType = "bazarr"
	ServiceProwlarr  ServiceType = "prowlarr"
	ServiceOverseerr ServiceType = "overseerr"
	ServiceJellyfin  ServiceType = "jellyfin"
)

// ServiceTypes lists every supported service type
var ServiceTypes = []ServiceType{
	ServiceRadarr,
	ServiceSonarr,
	ServiceBazarr,
	ServiceProwlarr,
	ServiceOverseerr,
	ServiceJellyfin,
}

// Valid reports whether t is one of the known service types
func (t ServiceType) Valid() bool {
	for _, st := range ServiceTypes {
		if t == st {
			return true
		}
	}
	return false
}

// MediaType represents the type of media (movie or tv show)
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// EventType is the normalized download-event vocabulary. Service-specific
// event names are mapped onto it per collector; unrecognized names pass
// through verbatim.
type EventType string

const (
	EventGrabbed    EventType = "grabbed"
	EventDownloaded EventType = "downloaded"
	EventDeleted    EventType = "deleted"
	EventRenamed    EventType = "renamed"
)

// SyncCategory is one orchestrated kind of sync work
type SyncCategory string

const (
	CategoryHistory  SyncCategory = "history"
	CategoryMetadata SyncCategory = "metadata"
	CategoryPlayback SyncCategory = "playback"
	CategoryStats    SyncCategory = "stats"
)

// Capability declares which sync categories a service type supports
type Capability struct {
	History  bool
	Metadata bool
	Playback bool
	Stats    bool
}

// Has reports whether the capability includes the given category
func (c Capability) Has(cat SyncCategory) bool {
	switch cat {
	case CategoryHistory:
		return c.History
	case CategoryMetadata:
		return c.Metadata
	case CategoryPlayback:
		return c.Playback
	case CategoryStats:
		return c.Stats
	}
	return false
}

// capabilities is the static service type → supported categories table
var capabilities = map[ServiceType]Capability{
	ServiceRadarr:    {History: true, Metadata: true},
	ServiceSonarr:    {History: true, Metadata: true},
	ServiceBazarr:    {History: true},
	ServiceProwlarr:  {Stats: true},
	ServiceOverseerr: {History: true, Metadata: true},
	ServiceJellyfin:  {Playback: true},
}

// Capabilities returns the sync capabilities of a service type. Unknown
// types support nothing.
func Capabilities(t ServiceType) Capability {
	return capabilities[t]
}
