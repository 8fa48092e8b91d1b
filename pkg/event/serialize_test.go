package event

import (
	"encoding/json"
	"testing"
	"time"
)

// TestNew はNew関数でイベントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("SummaryGeneratedDataでイベントを正常に生成できること", func(t *testing.T) {
		t.Parallel()

		data := SummaryGeneratedData{Title: "Sprint Planning", TranscriptLength: 120}

		before := time.Now().UTC()
		ev, err := New("summary-1", "user-1", TypeSummaryGenerated, 1, data)
		after := time.Now().UTC()

		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if ev.ID == "" {
			t.Error("IDが空文字列")
		}
		if ev.AggregateID != "summary-1" {
			t.Errorf("AggregateID = %q, want %q", ev.AggregateID, "summary-1")
		}
		if ev.AggregateType != AggregateTypeSummary {
			t.Errorf("AggregateType = %q, want %q", ev.AggregateType, AggregateTypeSummary)
		}
		if ev.OwnerID != "user-1" {
			t.Errorf("OwnerID = %q, want %q", ev.OwnerID, "user-1")
		}
		if ev.EventType != TypeSummaryGenerated {
			t.Errorf("EventType = %q, want %q", ev.EventType, TypeSummaryGenerated)
		}
		if ev.CreatedAt.Before(before) || ev.CreatedAt.After(after) {
			t.Errorf("CreatedAt = %v, 期待する範囲: [%v, %v]", ev.CreatedAt, before, after)
		}

		var decoded SummaryGeneratedData
		if err := json.Unmarshal(ev.Data, &decoded); err != nil {
			t.Fatalf("Dataのデシリアライズに失敗: %v", err)
		}
		if decoded != data {
			t.Errorf("Data = %+v, want %+v", decoded, data)
		}
	})

	t.Run("連続して生成したイベントのIDが異なること", func(t *testing.T) {
		t.Parallel()

		ev1, err := New("summary-2", "user-2", TypeSummaryDeleted, 1, SummaryDeletedData{})
		if err != nil {
			t.Fatalf("1回目のNew()でエラーが発生: %v", err)
		}
		ev2, err := New("summary-2", "user-2", TypeSummaryDeleted, 2, SummaryDeletedData{})
		if err != nil {
			t.Fatalf("2回目のNew()でエラーが発生: %v", err)
		}
		if ev1.ID == ev2.ID {
			t.Errorf("異なるイベントが同じIDを持っている: %q", ev1.ID)
		}
	})

	t.Run("未知のイベント種別でエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ev, err := New("summary-3", "user-3", Type("SummaryArchived"), 1, struct{}{})
		if err == nil {
			t.Fatal("New()がエラーを返すべきだが、nilが返った")
		}
		if ev != nil {
			t.Error("エラー時にnilでないEventが返った")
		}
	})

	t.Run("シリアライズ不可能なデータでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		// json.Marshalでエラーになるチャネル型を渡す
		ev, err := New("summary-4", "user-4", TypeSummaryShared, 1, make(chan int))
		if err == nil {
			t.Fatal("New()がエラーを返すべきだが、nilが返った")
		}
		if ev != nil {
			t.Error("エラー時にnilでないEventが返った")
		}
	})
}

// TestDecodeData はDecodeData関数でイベントデータを正しくデシリアライズできることを検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	t.Run("SummaryTitleUpdatedDataを正しくデコードできること", func(t *testing.T) {
		t.Parallel()

		original := SummaryTitleUpdatedData{OldTitle: "Meeting Summary", NewTitle: "Q3 Review"}
		ev, err := New("summary-10", "user-10", TypeSummaryTitleUpdated, 2, original)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		decoded, err := DecodeData[SummaryTitleUpdatedData](ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if *decoded != original {
			t.Errorf("DecodeData() = %+v, want %+v", *decoded, original)
		}
	})

	t.Run("不正なJSONでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ev := &Event{Data: json.RawMessage(`{invalid`)}
		if _, err := DecodeData[SummarySharedData](ev); err == nil {
			t.Fatal("DecodeData()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestType_Valid はイベント種別の判定を検証する。
func TestType_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  Type
		want bool
	}{
		{TypeSummaryGenerated, true},
		{TypeSummaryTitleUpdated, true},
		{TypeSummaryDeleted, true},
		{TypeSummaryShared, true},
		{Type(""), false},
		{Type("MediaUploaded"), false},
	}

	for _, tt := range tests {
		if got := tt.typ.Valid(); got != tt.want {
			t.Errorf("Type(%q).Valid() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
