package model

// Review is a customer testimonial.  Public submissions always start with
// Approved=false and only approved reviews are visible on public paths.
type Review struct {
    ID        int64  `json:"id"`        // reviews.id
    Name      string `json:"name"`      // author name
    Title     string `json:"title"`     // short headline
    Text      string `json:"text"`      // body text
    CreatedAt int64  `json:"createdAt"` // Unix milliseconds at submission
    Approved  bool   `json:"approved"`  // set once by an admin
}
