package market

// SelectOffer picks the cheapest usable offer from a read snapshot of an
// order book.
//
// An offer is usable when it still has remaining volume, its category
// matches (or the caller passed CategoryAny), and its capability tag
// satisfies the requirement's subset check. Among usable offers the minimum
// price wins; ties keep the first-seen offer so ranking is stable against
// the order book's own ordering.
//
// An empty result is an expected, frequent outcome, reported through the
// second return value rather than an error: callers treat it as a retryable
// condition, not a fault.
func SelectOffer(offers []ResourceOffer, requirement CapabilityTag, category int) (ResourceOffer, bool) {
	var best ResourceOffer
	found := false

	for _, offer := range offers {
		if offer.Price.IsNil() {
			// Malformed third-party entry; never comparable, never picked.
			continue
		}
		if offer.RemainingVolume <= 0 {
			continue
		}
		if category != CategoryAny && offer.Category != category {
			continue
		}
		if !offer.Tag.Satisfies(requirement) {
			continue
		}
		if !found || offer.Price.LT(best.Price) {
			best = offer
			found = true
		}
	}

	return best, found
}
