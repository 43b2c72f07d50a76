package assistant

import (
	"fmt"
	"strings"
)

const listingFAQ = "Q: What are the advantages of taking an owner subscription? A: The foremost advantage is that there is no limit on the number of listings. Other unique features include 10X More Visibility, Unlimited Enquiries, 20 Matching Buyer Leads, Relationship Manager (RM) Assistance, Assisted Listing, Access Buyer Verification (Litigation Report), and Recent Registered Transactions. " +
	"Q: What is the total price of the owner plan? A: The price starts from ₹3999 (including GST) and varies based on individual requirements. " +
	"Q: Is Post Property as an owner, free? A: Yes, owners can list 3 properties for free and see the inquiries. However, the Seller Prime Subscription is recommended for more benefits. " +
	"Q: Will I get genuine/interested clients, even after posting a free property? A: Yes, you will be able to see inquiries from interested clients on free listings. " +
	"Q: What modes of payment are possible to buy owner subscription? A: Payment modes include Debit/Credit Card, UPI, and Net Banking. " +
	"Q: How much time will it take for the subscription to get active? A: In most cases, it's instant, but sometimes it may take 24 to 48 hours. " +
	"Q: How many interested clients I will get after posting a property? A: There is no limit. Better images attract more clients. " +
	"Q: Is the amount of subscription refundable? A: No."

const primeURL = "https://www.squareyards.com/prime"

const noHistory = "No previous questions."

// SystemPrompt builds the instruction block for one chat turn. brand names the
// only organisation the assistant may represent.
func SystemPrompt(brand, city string, history []string) string {
	if brand == "" {
		brand = "SquareYards"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional real-estate AI chatbot for %s. ", brand)
	fmt.Fprintf(&b, "Do not promote any other organisation; only talk about %s. ", brand)
	b.WriteString("Provide accurate, concise, and helpful responses to user queries about properties and real estate markets. ")
	if city != "" {
		fmt.Fprintf(&b, "Tailor the response to the city %s. If the user asks about a different city, answer from your own knowledge. ", city)
	}
	b.WriteString("If the query is unrelated to real estate, politely redirect to real-estate topics and do not answer it. ")
	b.WriteString("If the user asks where your information comes from or anything else outside real estate, politely redirect. ")
	b.WriteString("Give the response in well-formatted HTML that works for both day and night modes of the chat UI. ")
	b.WriteString("Keep the response concise like a chatbot and answer directly without explanations. ")
	fmt.Fprintf(&b, "If the question relates to these FAQ, answer using the provided details: %s ", listingFAQ)
	fmt.Fprintf(&b, "The Prime Membership link is %s. ", primeURL)
	fmt.Fprintf(&b, "Include the following user context: %s", HistoryText(history))
	return b.String()
}

// HistoryText renders prior questions one per line.
func HistoryText(history []string) string {
	if len(history) == 0 {
		return noHistory
	}
	lines := make([]string, 0, len(history))
	for _, q := range history {
		lines = append(lines, "Previous Question: "+q)
	}
	return strings.Join(lines, "\n")
}

// StripFences removes markdown code fences the model wraps HTML in.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```html", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
