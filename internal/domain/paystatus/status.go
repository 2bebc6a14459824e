// Package paystatus は決済ステータスの正規化を行う。
// プロバイダのコード、スペイン語ラベル、旧データの別名を一つの列挙に寄せる。
package paystatus

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Status は正規化済みの決済ステータス。
type Status string

const (
	Pending     Status = "pending"
	Approved    Status = "approved"
	Rejected    Status = "rejected"
	Refunded    Status = "refunded"
	ChargedBack Status = "charged_back"
)

// 表示用ラベル（スペイン語）
const (
	LabelPaid     = "pagado"
	LabelPending  = "pendiente"
	LabelRejected = "rechazado"
)

// 別名 → 正規ステータス。キーはfold済みの形で持つ。
var aliases = map[string]Status{
	// approved
	"approved":   Approved,
	"aprobado":   Approved,
	"aprobada":   Approved,
	"pagado":     Approved,
	"pagada":     Approved,
	"paid":       Approved,
	"accredited": Approved,
	"acreditado": Approved,

	// pending
	"pending":      Pending,
	"pendiente":    Pending,
	"in_process":   Pending,
	"inprocess":    Pending,
	"en_proceso":   Pending,
	"authorized":   Pending,
	"autorizado":   Pending,
	"in_mediation": Pending,

	// rejected
	"rejected":  Rejected,
	"rechazado": Rejected,
	"rechazada": Rejected,
	"cancelled": Rejected,
	"canceled":  Rejected,
	"cancelado": Rejected,
	"cancelada": Rejected,

	// refunded
	"refunded":    Refunded,
	"refund":      Refunded,
	"reembolsado": Refunded,
	"devuelto":    Refunded,

	// charged_back
	"charged_back": ChargedBack,
	"chargeback":   ChargedBack,
	"contracargo":  ChargedBack,
}

var labels = map[Status]string{
	Approved:    LabelPaid,
	Pending:     LabelPending,
	Rejected:    LabelRejected,
	Refunded:    LabelRejected,
	ChargedBack: LabelRejected,
}

// Normalize は生のステータス文字列を正規ステータスにする。
// 不明・空はpending（照合を止めない）。
func Normalize(raw string) Status {
	key := fold(raw)
	if key == "" {
		return Pending
	}
	if s, ok := aliases[key]; ok {
		return s
	}
	return Pending
}

// Localize は表示用ラベルを返す。コード以外（ラベルや別名）も受け付ける。
func Localize(raw string) string {
	return labels[Normalize(raw)]
}

// Label はステータスの表示用ラベル。
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return LabelPending
}

func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

func (s Status) IsApproved() bool {
	return s == Approved
}

// IsReversal は承認後に在庫を戻すべきステータスか。
func (s Status) IsReversal() bool {
	return s == Rejected || s == Refunded || s == ChargedBack
}

// IsSettled はpending以外の確定したステータスか。
func (s Status) IsSettled() bool {
	return s.Valid() && s != Pending
}

func (s Status) String() string {
	return string(s)
}

// アクセント除去 + 小文字化 + 区切りを "_" に統一
func fold(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		if r == ' ' || r == '-' || r == '_' || r == '\t' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}
