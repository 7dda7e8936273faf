package archive

import "bytes"

// mergePrefixLen is how many leading digest bytes two success records must
// share, on at least one algorithm, to be judged the same content.
const mergePrefixLen = 12

// SameContent reports whether two records represent the same observation:
// both successful, and either the same URL or agreeing digest prefixes.
func SameContent(a, b *Response) bool {
	if !a.OK() || !b.OK() {
		return false
	}
	if a.URL == b.URL {
		return true
	}
	for algo, da := range a.Digests {
		db := b.Digests[algo]
		if len(da) < mergePrefixLen || len(db) < mergePrefixLen {
			continue
		}
		if bytes.Equal(da[:mergePrefixLen], db[:mergePrefixLen]) {
			return true
		}
	}
	return false
}

// SameURL reports whether two success records observed the same URL.
func SameURL(a, b *Response) bool {
	return a.OK() && b.OK() && a.URL == b.URL
}

// MergeGroups assigns each record to a duplicate group: a record joins the
// group of the first earlier record the relation links it to, otherwise it
// heads a new group. The input is expected in (time, id) descending order,
// so the head of each group is the newest observation. Returned indexes
// are parallel to rs.
func MergeGroups(rs []Response, same func(a, b *Response) bool) []int {
	groupOf := make([]int, len(rs))
	next := 0
	for i := range rs {
		groupOf[i] = -1
		for j := 0; j < i; j++ {
			if same(&rs[j], &rs[i]) {
				groupOf[i] = groupOf[j]
				break
			}
		}
		if groupOf[i] < 0 {
			groupOf[i] = next
			next++
		}
	}
	return groupOf
}
