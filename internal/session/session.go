// Package session tracks the transient per-operator video edit workflow:
// collect videos, pick a thumbnail, optionally set a caption find/replace
// pair, then hand off to rendering. Sessions live only in memory and are
// destroyed after processing or on /cancel.
package session

import (
	"strings"

	"vidbot/internal/transport"
)

type State int

const (
	// StateCollecting accepts videos until the operator says "done".
	StateCollecting State = iota
	StateAwaitingThumbnail
	StateAwaitingReplaceDecision
	StateAwaitingFindText
	StateAwaitingReplaceText
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting_videos"
	case StateAwaitingThumbnail:
		return "awaiting_thumbnail"
	case StateAwaitingReplaceDecision:
		return "awaiting_replace_decision"
	case StateAwaitingFindText:
		return "awaiting_find_text"
	case StateAwaitingReplaceText:
		return "awaiting_replace_text"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// VideoItem is immutable once appended; slice order is arrival order.
type VideoItem struct {
	Media    transport.MediaRef
	Caption  string
	Duration int // seconds
	Width    int
	Height   int
}

type Session struct {
	OwnerID int64
	State   State

	Videos    []VideoItem
	Thumbnail transport.MediaRef // empty means no replacement thumbnail

	FindText    string
	ReplaceText string
	HasFind     bool
	HasReplace  bool
}

func (s *Session) AppendVideo(v VideoItem) int {
	s.Videos = append(s.Videos, v)
	return len(s.Videos)
}

func (s *Session) SetThumbnail(m transport.MediaRef) {
	s.Thumbnail = m
}

func (s *Session) SetFindText(t string) {
	s.FindText = t
	s.HasFind = true
}

func (s *Session) SetReplaceText(t string) {
	s.ReplaceText = t
	s.HasReplace = true
}

// RewriteCaption applies the literal, case-sensitive, non-overlapping
// substring substitution. The caption passes through unchanged unless both
// find and replace are set and the caption is non-empty.
func (s *Session) RewriteCaption(caption string) string {
	if !s.HasFind || !s.HasReplace || caption == "" {
		return caption
	}
	return strings.ReplaceAll(caption, s.FindText, s.ReplaceText)
}
