package mspace

// mergeObjects joins in-use chunk pb into the in-use chunk pa directly
// before it. Both must already be validated.
func (s *Space) mergeObjects(pa, pb chunk) uintptr {
	if pa.isMapped() || pb.isMapped() || pa.next() != pb {
		return 0
	}
	pa.setHead(pa.head() + pb.size())
	return pa.mem()
}
