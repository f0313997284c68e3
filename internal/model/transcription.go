package model

import "time"

// Transcription は1件のMP3文字起こし成果物を表す。
// IDはshortidのResource名前空間（先頭が英小文字）の6文字。
type Transcription struct {
	ID          string
	OwnerID     string
	Filename    string
	Text        string
	SummaryText string
	HasSummary  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TranscriptionWithOwner は文字起こしと所有者アカウントをJOINした結果。
type TranscriptionWithOwner struct {
	Transcription
	OwnerUsername  string
	OwnerFirstName string
	OwnerLastName  string
}

// OwnerDisplayName は所有者の表示名を返す。
func (t *TranscriptionWithOwner) OwnerDisplayName() string {
	return JoinName(t.OwnerFirstName, t.OwnerLastName)
}

// TranscriptionSummary は一覧表示用の派生フィールドのみを持つ。
// 本文は含めない。
type TranscriptionSummary struct {
	ID         string
	Filename   string
	HasSummary bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
