// Package textutil rewrites prompt text so known policy-sensitive terms are
// replaced with neutral, artistic equivalents before submission to the image
// provider, and classifies provider error messages that look like safety
// blocks.
package textutil

import (
	"regexp"
	"strings"
)

// replacement pairs are applied in order. ASCII terms match
// case-insensitively; non-ASCII terms (Korean) match as exact substrings.
type replacement struct {
	term string
	safe string
}

var replacements = []replacement{
	// Blood and injury.
	{"피투성이", "붉게 물든"},
	{"출혈", "붉은 흐름"},
	{"피", "붉은 빛"},
	{"bleeding", "flowing crimson"},
	{"bloody", "crimson-toned"},
	{"blood", "red accents"},

	// Killing and death.
	{"살인자", "대결 상대"},
	{"살인", "극적인 대결"},
	{"살해", "극적인 순간"},
	{"죽음", "마지막 순간"},
	{"죽이다", "대결하다"},
	{"죽인", "맞선"},
	{"죽어", "쓰러진"},
	{"시체", "쓰러진 인물"},
	{"사체", "누운 형체"},
	{"murderer", "antagonist"},
	{"murder", "dramatic confrontation"},
	{"killing", "confronting"},
	{"killed", "confronted"},
	{"killer", "rival"},
	{"kill", "confront"},
	{"death", "final moment"},
	{"dead", "fallen"},
	{"corpse", "resting figure"},
	{"body", "figure"},

	// Violence.
	{"폭력적", "역동적인"},
	{"폭력", "격렬한 움직임"},
	{"공격하", "맞서"},
	{"공격", "대치"},
	{"때리", "부딪히"},
	{"violence", "intense action"},
	{"violent", "dynamic"},
	{"attacking", "facing"},
	{"attack", "confrontation"},
	{"brutality", "intensity"},
	{"brutal", "intense"},
	{"cruelty", "drama"},
	{"cruel", "dramatic"},

	// Weapons.
	{"무기", "도구"},
	{"권총", "장치"},
	{"소총", "장치"},
	{"단검", "금속 조각"},
	{"도끼", "도구"},
	{"칼", "금속 물체"},
	{"검", "고대 유물"},
	{"총", "장치"},
	{"weapons", "artifacts"},
	{"weapon", "artifact"},
	{"sword", "ancient blade"},
	{"knife", "metallic object"},
	{"gun", "device"},
	{"pistol", "device"},
	{"rifle", "equipment"},
	{"dagger", "ornate object"},
	{"axe", "tool"},

	// Battle and war.
	{"전투", "대결 장면"},
	{"전쟁", "역사적 충돌"},
	{"싸움", "대치 상황"},
	{"싸우", "맞서"},
	{"battle", "dramatic standoff"},
	{"warfare", "conflict"},
	{"war", "historic conflict"},
	{"combat", "confrontation"},
	{"fighting", "facing off"},
	{"fight", "standoff"},

	// Pain and injury.
	{"고문", "고난"},
	{"고통", "시련"},
	{"상처", "흔적"},
	{"부상", "표식"},
	{"torture", "hardship"},
	{"torment", "struggle"},
	{"wounded", "marked"},
	{"wound", "mark"},
	{"injury", "scar"},
	{"injured", "scarred"},
	{"painful", "difficult"},
	{"pain", "struggle"},
	{"suffering", "enduring"},

	// Fear and evil.
	{"악마", "신비로운 존재"},
	{"악한", "그림자 같은"},
	{"악", "어둠"},
	{"괴물", "신화적 존재"},
	{"무서운", "신비로운"},
	{"공포", "긴장감"},
	{"두려운", "불가사의한"},
	{"demon", "mythical being"},
	{"devil", "shadowy entity"},
	{"evil", "shadowy"},
	{"monster", "legendary creature"},
	{"scary", "mysterious"},
	{"terrifying", "enigmatic"},
	{"horror", "suspense"},
	{"fear", "tension"},

	// Crime.
	{"범죄", "사건"},
	{"범인", "인물"},
	{"피해자", "관련자"},
	{"crime", "incident"},
	{"criminal", "figure"},
	{"victim", "person involved"},
}

var asciiPatterns = buildASCIIPatterns()

func buildASCIIPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(replacements))
	for _, r := range replacements {
		if isASCII(r.term) {
			patterns[r.term] = regexp.MustCompile("(?i)" + regexp.QuoteMeta(r.term))
		}
	}
	return patterns
}

func isASCII(s string) bool {
	for _, c := range s {
		if c > 127 {
			return false
		}
	}
	return true
}

// Rewrite replaces known sensitive terms with safe equivalents. It is a
// total function: text without matches is returned unchanged.
func Rewrite(text string) string {
	result := text
	for _, r := range replacements {
		if pattern, ok := asciiPatterns[r.term]; ok {
			result = pattern.ReplaceAllString(result, r.safe)
			continue
		}
		result = strings.ReplaceAll(result, r.term, r.safe)
	}
	return result
}

var safetyKeywords = []string{
	"SENSITIVE",
	"SAFETY",
	"BLOCKED",
	"FILTER",
	"VIOLATION",
	"CONTENT",
	"POLICY",
}

// IsSafetyBlockMessage reports whether an error message looks like the image
// provider refused the request on safety or policy grounds.
func IsSafetyBlockMessage(msg string) bool {
	upper := strings.ToUpper(msg)
	for _, keyword := range safetyKeywords {
		if strings.Contains(upper, keyword) {
			return true
		}
	}
	return false
}
