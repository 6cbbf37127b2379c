package money

import "strings"

var smallNumbers = []string{
	"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
	"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
	"Seventeen", "Eighteen", "Nineteen",
}

var tensNames = []string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
}

// InWords spells the amount using the Indian numbering system, e.g.
// 913183.50 -> "Nine Lakh Thirteen Thousand One Hundred and Eighty Three Rupees and Fifty Paise Only".
func InWords(m Money) string {
	if m < 0 {
		return "Minus " + InWords(-m)
	}
	rupees := int64(m) / 100
	paise := int64(m) % 100

	var b strings.Builder
	if rupees == 0 {
		b.WriteString("Zero")
	} else {
		b.WriteString(indianWords(rupees))
	}
	b.WriteString(" Rupees")
	if paise > 0 {
		b.WriteString(" and ")
		b.WriteString(underHundred(paise))
		b.WriteString(" Paise")
	}
	b.WriteString(" Only")
	return b.String()
}

func indianWords(n int64) string {
	var parts []string
	groups := []struct {
		size int64
		name string
	}{
		{10000000, "Crore"},
		{100000, "Lakh"},
		{1000, "Thousand"},
	}
	for _, g := range groups {
		if n >= g.size {
			count := n / g.size
			var words string
			if count >= 100 {
				words = indianWords(count)
			} else {
				words = underHundred(count)
			}
			parts = append(parts, words+" "+g.name)
			n %= g.size
		}
	}
	if n >= 100 {
		parts = append(parts, smallNumbers[n/100]+" Hundred")
		n %= 100
	}
	if n > 0 {
		if len(parts) > 0 {
			parts = append(parts, "and "+underHundred(n))
		} else {
			parts = append(parts, underHundred(n))
		}
	}
	return strings.Join(parts, " ")
}

func underHundred(n int64) string {
	if n < 20 {
		return smallNumbers[n]
	}
	out := tensNames[n/10]
	if n%10 != 0 {
		out += " " + smallNumbers[n%10]
	}
	return out
}
