// Package event は議事録サマリーに対する監査イベントの型を定義する。
//
// 変更操作と共有の成功ごとに不変のイベントを1件追記する。
// イベントは監査用であり、履歴APIとしては公開しない。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeSummary は議事録サマリーを表す。
	AggregateTypeSummary AggregateType = "Summary"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeSummaryGenerated はサマリーが生成・保存されたことを表す。
	TypeSummaryGenerated Type = "SummaryGenerated"
	// TypeSummaryTitleUpdated はタイトルが変更されたことを表す。
	TypeSummaryTitleUpdated Type = "SummaryTitleUpdated"
	// TypeSummaryDeleted はサマリーが削除されたことを表す。
	TypeSummaryDeleted Type = "SummaryDeleted"
	// TypeSummaryShared はサマリーがメールで共有されたことを表す。
	TypeSummaryShared Type = "SummaryShared"
)

// Valid は既知のイベント種別かどうかを返す。
func (t Type) Valid() bool {
	switch t {
	case TypeSummaryGenerated, TypeSummaryTitleUpdated, TypeSummaryDeleted, TypeSummaryShared:
		return true
	default:
		return false
	}
}

// Event は監査ログにおける不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象サマリーのID。
	AggregateID string `json:"aggregateId"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregateType"`
	// OwnerID は操作した所有者のID。
	OwnerID string `json:"ownerId"`
	// EventType はイベントの種類。
	EventType Type `json:"eventType"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はサマリー内でのイベントの順序番号。1から始まる。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"createdAt"`
}

// SummaryGeneratedData はSummaryGeneratedイベントのデータ。
type SummaryGeneratedData struct {
	// Title は保存時のタイトル。
	Title string `json:"title"`
	// TranscriptLength は議事録本文の文字数。
	TranscriptLength int `json:"transcriptLength"`
}

// SummaryTitleUpdatedData はSummaryTitleUpdatedイベントのデータ。
type SummaryTitleUpdatedData struct {
	OldTitle string `json:"oldTitle"`
	NewTitle string `json:"newTitle"`
}

// SummaryDeletedData はSummaryDeletedイベントのデータ。
type SummaryDeletedData struct {
	Title string `json:"title"`
}

// SummarySharedData はSummarySharedイベントのデータ。
// 宛先アドレスそのものは記録しない。
type SummarySharedData struct {
	// RecipientCount は送信先の件数。
	RecipientCount int `json:"recipientCount"`
	// Subject は送信したメールの件名。
	Subject string `json:"subject"`
}
