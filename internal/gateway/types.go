package gateway

// LoginResult 登录命令的原始返回
//
// Success=false 不是网关错误，消息由视图层展示
type LoginResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Token   *string  `json:"token"`
	Role    *string  `json:"role"`
	Balance *float64 `json:"balance"`
}

// StatsData 号池统计数据
type StatsData struct {
	Total     int `json:"total"`
	ProTrial  int `json:"pro_trial"`
	Limit2500 int `json:"limit_2500"`
}

// ClaimData 领取成功后返回的完整载荷
//
// 后端保证扣费与分配的原子性，载荷要么完整要么没有
type ClaimData struct {
	Email        string  `json:"email"`
	RefreshToken string  `json:"refresh_token"`
	AILimit      int     `json:"ai_limit"`
	NewBalance   float64 `json:"new_balance"`
}

// TokenRecord 已领取凭证的只读记录，展示顺序由后端决定
type TokenRecord struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	AccountID    int64  `json:"account_id"`
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
	AILimit      int    `json:"ai_limit"`
	CreatedAt    string `json:"created_at"`
}

// RechargeOrder 充值订单，客户端不持久化，关闭支付页后即作废
type RechargeOrder struct {
	OutTradeNo string  `json:"out_trade_no"`
	PaymentURL string  `json:"payment_url"`
	Amount     float64 `json:"amount"`
}

// EmailMessage 临时邮箱中的一封邮件
type EmailMessage struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Content     string `json:"content"`
	HTMLContent string `json:"htmlContent"`
	HasHTML     bool   `json:"hasHtml"`
	Timestamp   int64  `json:"timestamp"`
}

// AccessToken refresh_token 换取的访问令牌
type AccessToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	TokenType    string `json:"token_type"`
	UserID       string `json:"user_id"`
}

// RequestLimitInfo Warp 返回的额度原始信息
type RequestLimitInfo struct {
	IsUnlimited     bool   `json:"isUnlimited"`
	RequestLimit    int    `json:"requestLimit"`
	RequestsUsed    int    `json:"requestsUsedSinceLastRefresh"`
	NextRefreshTime string `json:"nextRefreshTime"`
}
