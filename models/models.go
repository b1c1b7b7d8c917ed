package models

import "errors"

// SourceType tags which content collection a feed item came from.
type SourceType string

const (
	SourceJournal SourceType = "journal"
	SourceMedia   SourceType = "media"
	SourceRating  SourceType = "rating"
	SourceArticle SourceType = "article"
	SourceSpecies SourceType = "species"
	SourceBook    SourceType = "book"
	SourceProfile SourceType = "profile"
)

// SourceTypes lists every tracked collection in enumeration order.
var SourceTypes = []SourceType{
	SourceJournal,
	SourceMedia,
	SourceRating,
	SourceArticle,
	SourceSpecies,
	SourceBook,
	SourceProfile,
}

// MediaKind of a feed item's visual payload.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// ErrDuplicateVote is reported by the vote store when the viewer has
// already voted for the item, e.g. from another tab.
var ErrDuplicateVote = errors.New("duplicate vote")

// FeedItem is the unified representation of one piece of content from
// any source collection. Optional fields keep their zero value when the
// native record has no counterpart; JSON omits them so clients can tell
// absent from empty.
type FeedItem struct {
	Id           string     `json:"id"`
	SourceType   SourceType `json:"sourceType"`
	CreatedAt    int64      `json:"createdAt"`
	Title        string     `json:"title,omitempty"`
	Text         string     `json:"text,omitempty"`
	MediaUrl     string     `json:"mediaUrl,omitempty"`
	MediaType    MediaKind  `json:"mediaType,omitempty"`
	ThumbnailUrl string     `json:"thumbnailUrl,omitempty"`
	Meta         string     `json:"meta,omitempty"`
	Link         string     `json:"link,omitempty"`
}

// DisplayTitle falls back to the source type label when the item has no
// title of its own.
func (item FeedItem) DisplayTitle() string {
	if item.Title != "" {
		return item.Title
	}
	return string(item.SourceType)
}

// SourceRecord is the sealed union of native record shapes. The
// normalizer switches over the concrete types; adding a collection
// means adding a variant here and a case there.
type SourceRecord interface {
	Source() SourceType
}

// JournalEntry is a dated free-text diary record.
type JournalEntry struct {
	Id        int64
	CreatedAt int64
	Title     string
	Body      string
}

func (JournalEntry) Source() SourceType { return SourceJournal }

// MediaBlock is an uploaded image or video with an optional caption.
type MediaBlock struct {
	Id        int64
	CreatedAt int64
	Url       string
	Kind      MediaKind
	Thumbnail string
	Caption   string
}

func (MediaBlock) Source() SourceType { return SourceMedia }

// Rating scores some subject (a film, an album, a restaurant).
type Rating struct {
	Id        int64
	CreatedAt int64
	Subject   string
	Score     int
	Comment   string
}

func (Rating) Source() SourceType { return SourceRating }

// Article is a saved outbound link with a short summary.
type Article struct {
	Id        int64
	CreatedAt int64
	Title     string
	Url       string
	Summary   string
	Author    string
}

func (Article) Source() SourceType { return SourceArticle }

// Species is a garden sighting. Rows that predate the slug column carry
// an empty slug and so have no usable native id.
type Species struct {
	Slug       string
	CreatedAt  int64
	CommonName string
	LatinName  string
	Photo      string
}

func (Species) Source() SourceType { return SourceSpecies }

// Book is a bookshelf record with an optional review snippet.
type Book struct {
	Id        int64
	CreatedAt int64
	Title     string
	Author    string
	CoverUrl  string
	Review    string
}

func (Book) Source() SourceType { return SourceBook }

// Profile is a followed person or site.
type Profile struct {
	Id          int64
	CreatedAt   int64
	DisplayName string
	Bio         string
	AvatarUrl   string
	Url         string
}

func (Profile) Source() SourceType { return SourceProfile }

// FeedBatch is one released slice of a session's snapshot.
type FeedBatch struct {
	Items     []FeedItem `json:"items"`
	Cursor    int        `json:"cursor"`
	Exhausted bool       `json:"exhausted"`
}

// VoteState pairs the aggregate count with the viewer's own membership
// for one item.
type VoteState struct {
	Count int64 `json:"count"`
	Voted bool  `json:"voted"`
}

// AchievementEvent fired when a one-shot achievement flag transitions.
type AchievementEvent struct {
	ViewerId string `json:"viewerId"`
	Kind     string `json:"kind"`
	Details  string `json:"details,omitempty"`
}

// LikeEvent fired after a confirmed engagement toggle.
type LikeEvent struct {
	ItemId string `json:"itemId"`
	Count  int64  `json:"count"`
	Voted  bool   `json:"voted"`
}
