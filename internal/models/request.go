package models

// SelectionItem is one picked image with its product binding. TaskID zero
// marks an image matched from the artifact store (file-system result)
// rather than an AITask row.
type SelectionItem struct {
	TaskID    int64  `json:"image_id"`
	ProductID int64  `json:"product_id"`
	SizeID    int64  `json:"size_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price,omitempty"`
}

type SubmitSelectionRequest struct {
	Selections []SelectionItem `json:"selections" binding:"required"`
}

type VerifyTokenRequest struct {
	Token  string `json:"token" binding:"required"`
	OpenID string `json:"openid" binding:"required"`
}

type IssueTokenRequest struct {
	FranchiseeID int64 `json:"franchisee_id"`
}

type SearchOrdersRequest struct {
	FranchiseeID int64  `json:"franchisee_id" binding:"required"`
	Phone        string `json:"phone"`
	OrderNumber  string `json:"order_number"`
}

type RechargeRequest struct {
	Amount      string `json:"amount" binding:"required"`
	BonusAmount string `json:"bonus_amount"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

type ManualLogisticsRequest struct {
	Carrier        string `json:"carrier" binding:"required"`
	TrackingNumber string `json:"tracking_number" binding:"required"`
	Status         string `json:"status"`
	Remark         string `json:"remark"`
}

// MeituCallback is the push form of the beautification result, received at
// the repost_url registered on submission.
type MeituCallback struct {
	MsgID     string `json:"msg_id"`
	MediaData string `json:"media_data"`
	Code      int    `json:"code"`
	Message   string `json:"message,omitempty"`
}
