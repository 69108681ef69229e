package classifier

// PadPre returns every sequence resized to maxLen. Short sequences are
// padded with zeros in front; long ones lose their leading ids.
func PadPre(seqs [][]int, maxLen int) [][]int {
	out := make([][]int, len(seqs))
	for i, seq := range seqs {
		row := make([]int, maxLen)
		if len(seq) > maxLen {
			seq = seq[len(seq)-maxLen:]
		}
		copy(row[maxLen-len(seq):], seq)
		out[i] = row
	}
	return out
}
