package domain

// CheckoutURLResponse is the authority's answer to GET /{softwareId}/checkout
type CheckoutURLResponse struct {
	URL string `json:"url"`
}

// CheckoutSession is a checkout link paired with the license key it will activate
type CheckoutSession struct {
	LicenseKey string `json:"licenseKey"`
	URL        string `json:"url"`
}
