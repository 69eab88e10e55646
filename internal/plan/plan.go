// Package plan decides which derivatives to produce for a media reference.
package plan

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"media-optimizer/internal/mediaerr"
	"media-optimizer/internal/mediatypes"
)

// ResizePolicy controls how many derivatives are produced and at what scale.
type ResizePolicy int

const (
	// PolicyNone produces one derivative at source resolution.
	PolicyNone ResizePolicy = iota
	// PolicyUp produces five derivatives scaled 1x to 4x.
	PolicyUp
	// PolicyDown produces five derivatives scaled 0.25x to 1x.
	PolicyDown
)

// ParsePolicy converts a markup token to a ResizePolicy. The empty token
// and "none" both mean PolicyNone. "true" is not an alias for up.
func ParsePolicy(token string) (ResizePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", "none":
		return PolicyNone, nil
	case "up":
		return PolicyUp, nil
	case "down":
		return PolicyDown, nil
	default:
		return PolicyNone, &mediaerr.UnknownResizePolicyError{Token: token}
	}
}

func (p ResizePolicy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyUp:
		return "up"
	case PolicyDown:
		return "down"
	default:
		return fmt.Sprintf("ResizePolicy(%d)", int(p))
	}
}

// Suffixes are appended to the base name of scaled derivatives, in plan order.
var Suffixes = []string{"a", "b", "c", "d", "e"}

var (
	upMultipliers   = []float64{1, 1.5, 2, 3, 4}
	downMultipliers = []float64{0.25, 0.375, 0.5, 0.75, 1}
)

// Dimensions of a decoded source. For animated images Height is one frame.
type Dimensions struct {
	Width  int
	Height int
}

// Derivative is one planned output.
type Derivative struct {
	Suffix     string
	Multiplier float64
	// Density is the srcset descriptor value, Multiplier relative to the
	// first entry of the plan.
	Density float64
	Width   int
	Height  int
	// Resize is false when the derivative is encoded at source resolution.
	Resize bool
}

// DensityDescriptor formats Density for a srcset candidate, e.g. "1.5x".
func (d Derivative) DensityDescriptor() string {
	return strconv.FormatFloat(d.Density, 'f', -1, 64) + "x"
}

// DerivativePlan is the ordered list of derivatives for one reference.
type DerivativePlan struct {
	Policy      ResizePolicy
	Derivatives []Derivative
}

// Plan builds the derivative plan for policy. dims may be nil when the
// source dimensions are unknown; every derivative is then encoded at
// source resolution.
func Plan(policy ResizePolicy, dims *Dimensions) (DerivativePlan, error) {
	var multipliers []float64
	switch policy {
	case PolicyNone:
		return DerivativePlan{
			Policy:      policy,
			Derivatives: []Derivative{scaled("", 1, 1, dims)},
		}, nil
	case PolicyUp:
		multipliers = upMultipliers
	case PolicyDown:
		multipliers = downMultipliers
	default:
		return DerivativePlan{}, &mediaerr.UnknownResizePolicyError{Token: policy.String()}
	}

	p := DerivativePlan{Policy: policy, Derivatives: make([]Derivative, len(multipliers))}
	for i, m := range multipliers {
		p.Derivatives[i] = scaled(Suffixes[i], m, multipliers[0], dims)
	}
	return p, nil
}

func scaled(suffix string, m, base float64, dims *Dimensions) Derivative {
	d := Derivative{Suffix: suffix, Multiplier: m, Density: m / base}
	if dims == nil || dims.Width <= 0 || dims.Height <= 0 {
		return d
	}
	d.Width = scale(dims.Width, m)
	d.Height = scale(dims.Height, m)
	d.Resize = m != 1
	return d
}

func scale(v int, m float64) int {
	return max(1, int(math.Round(float64(v)*m)))
}

// OutputPath returns the derivative path for source: the extension is
// replaced by the derivative format's and suffix is appended to the base
// name. It works on both slash-separated URLs and filesystem paths.
func OutputPath(source, suffix string) string {
	ext := path.Ext(source)
	return strings.TrimSuffix(source, ext) + suffix + mediatypes.DerivativeFormat.Extension()
}

// Srcset renders the srcset attribute for a plan whose source URL is src.
// A single-entry plan yields just the URL.
func Srcset(src string, p DerivativePlan) string {
	if len(p.Derivatives) == 1 {
		return OutputPath(src, p.Derivatives[0].Suffix)
	}
	parts := make([]string, len(p.Derivatives))
	for i, d := range p.Derivatives {
		parts[i] = OutputPath(src, d.Suffix) + " " + d.DensityDescriptor()
	}
	return strings.Join(parts, ", ")
}

// MediaReference is one optimizable placeholder found in page markup.
type MediaReference struct {
	// SourcePath is relative to the build output root, slash separated.
	SourcePath string
	Policy     ResizePolicy
	// Page is the output-relative page the reference came from.
	Page string
}
