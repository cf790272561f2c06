// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ucan

import "strings"

// Capability grants the action Can on the resource With. Can is either
// a literal action ("upload/add"), a namespace wildcard ("upload/*")
// covering every action under that prefix, or "*" for every action.
type Capability struct {
	With string `cbor:"with" json:"with"`
	Can  string `cbor:"can" json:"can"`

	// Caveats restrict the grant. Only invocations use them here: a
	// revocation names its target delegation under "ucan".
	Caveats map[string]string `cbor:"nb,omitempty" json:"nb,omitempty"`
}

// Wildcard grants every action on a resource.
const Wildcard = "*"

// ActionCovers reports whether a granted action covers a requested one.
// requested may itself be a wildcard, in which case granted must be at
// least as broad.
func ActionCovers(granted, requested string) bool {
	if granted == Wildcard || granted == requested {
		return true
	}
	prefix, ok := strings.CutSuffix(granted, "*")
	if !ok || !strings.HasSuffix(prefix, "/") {
		return false
	}
	return strings.HasPrefix(requested, prefix)
}

// Covers reports whether c grants action on resource.
func (c Capability) Covers(resource, action string) bool {
	return c.With == resource && ActionCovers(c.Can, action)
}

// coversCapability reports whether c is at least as broad as other.
// Caveats on c must all be present with the same value on other.
func (c Capability) coversCapability(other Capability) bool {
	if !c.Covers(other.With, other.Can) {
		return false
	}
	for key, value := range c.Caveats {
		if other.Caveats[key] != value {
			return false
		}
	}
	return true
}

// Allows reports whether any capability in capabilities grants action
// on resource.
func Allows(capabilities []Capability, resource, action string) bool {
	for _, c := range capabilities {
		if c.Covers(resource, action) {
			return true
		}
	}
	return false
}

// AllCovered reports whether every capability in requested is covered
// by some capability in granted, and returns the first one that is not.
func AllCovered(granted, requested []Capability) (Capability, bool) {
	for _, want := range requested {
		covered := false
		for _, have := range granted {
			if have.coversCapability(want) {
				covered = true
				break
			}
		}
		if !covered {
			return want, false
		}
	}
	return Capability{}, true
}

// String renders the capability as "can on with".
func (c Capability) String() string {
	return c.Can + " on " + c.With
}
