package ledger

// MaxRentAmount keeps rentAmount*savingsPercent within int64.
const MaxRentAmount = int64(^uint64(0)>>1) / 100

// Split divides one rent payment into the withheld savings portion
// floor(rent*percent/100) and the remainder that goes to the owner.
func Split(rent int64, percent uint8) (saved, owner int64) {
	saved = rent * int64(percent) / 100
	return saved, rent - saved
}
