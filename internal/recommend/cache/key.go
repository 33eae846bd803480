// Package cache stores finished recommendation responses keyed by request signature and
// invalidates them through user and problem tags.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const (
	keyPrefix = "rec-ai:"
	tagPrefix = "rec-ai:idx:"
)

// Signature lists every request dimension that changes the response.
func Signature(rc recommend.RequestContext, promptVersion, chainID string) string {
	domains := append([]string(nil), rc.Domains...)
	sort.Strings(domains)
	return strings.Join([]string{
		"u=" + rc.UserID.String(),
		"l=" + strconv.Itoa(rc.Limit),
		"o=" + string(rc.Objective),
		"d=" + string(rc.Difficulty),
		"dom=" + strings.Join(domains, ","),
		"tb=" + strconv.Itoa(rc.TimeboxMinutes),
		"pv=" + promptVersion,
		"c=" + chainID,
		"t=" + string(rc.Type),
		"tier=" + rc.Tier,
		"ab=" + rc.ABGroup,
	}, "|")
}

func Key(rc recommend.RequestContext, promptVersion, chainID string) string {
	sum := sha256.Sum256([]byte(Signature(rc, promptVersion, chainID)))
	return keyPrefix + rc.UserID.String() + ":" + hex.EncodeToString(sum[:])[:32]
}

func UserTag(userID uuid.UUID) string {
	return tagPrefix + "user:" + userID.String()
}

func ProblemTag(problemID int64) string {
	return fmt.Sprintf("%sproblem:%d", tagPrefix, problemID)
}

// ProfileKey holds a learner's cached profile summary.
func ProfileKey(userID uuid.UUID) string {
	return keyPrefix + "profile:" + userID.String()
}

func ProfileTag(userID uuid.UUID) string {
	return tagPrefix + "profile:" + userID.String()
}
