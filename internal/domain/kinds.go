package domain

// FeatureKind classifies a rich-text facet feature.
type FeatureKind int

const (
	FeatureUnknown FeatureKind = iota
	FeatureMention
	FeatureTag
	FeatureLink
)

var featureKinds = map[string]FeatureKind{
	"app.bsky.richtext.facet#mention": FeatureMention,
	"app.bsky.richtext.facet#tag":     FeatureTag,
	"app.bsky.richtext.facet#link":    FeatureLink,
}

// ParseFeatureKind maps a facet feature $type to its kind. Unrecognized types
// map to FeatureUnknown.
func ParseFeatureKind(typ string) FeatureKind {
	return featureKinds[typ]
}

func (k FeatureKind) String() string {
	switch k {
	case FeatureMention:
		return "mention"
	case FeatureTag:
		return "tag"
	case FeatureLink:
		return "link"
	default:
		return "unknown"
	}
}

// EmbedKind classifies the attachment of a post.
type EmbedKind int

const (
	EmbedNone EmbedKind = iota
	EmbedImages
	EmbedExternal
	EmbedOther
)

var embedKinds = map[string]EmbedKind{
	"app.bsky.embed.images":   EmbedImages,
	"app.bsky.embed.external": EmbedExternal,
}

// ParseEmbedKind maps an embed $type to its kind. An empty type means there is
// no embed; any other unrecognized type is EmbedOther.
func ParseEmbedKind(typ string) EmbedKind {
	if typ == "" {
		return EmbedNone
	}
	if k, ok := embedKinds[typ]; ok {
		return k
	}
	return EmbedOther
}

func (k EmbedKind) String() string {
	switch k {
	case EmbedNone:
		return "none"
	case EmbedImages:
		return "images"
	case EmbedExternal:
		return "external"
	default:
		return "other"
	}
}
