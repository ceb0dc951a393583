package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizer はプロフィールの表示名などのプレーンテキストからHTMLを除去する。
// bluemondayのStrictPolicyで全タグを除去した後、エスケープされた実体参照を元に戻す。
// 出力はHTMLとして解釈されない前提のテキストであり、表示側でエスケープする。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を取り除いたテキストを返す。
// 実体参照で書かれたタグ（&lt;b&gt; など）も復元後に除去されるまで繰り返す。
func (s *ProfileSanitizer) Sanitize(text string) string {
	current := text
	for i := 0; i < maxSanitizePasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(current)))
		if next == current {
			break
		}
		current = next
	}
	return current
}

const maxSanitizePasses = 4
