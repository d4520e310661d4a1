package domain

import "time"

type User struct {
	UserID       string     `json:"id" dynamodbav:"user_id"`
	Username     string     `json:"username" dynamodbav:"username"`
	Email        string     `json:"email,omitempty" dynamodbav:"email"`
	Phone        string     `json:"phone" dynamodbav:"phone"`
	PasswordHash string     `json:"-" dynamodbav:"password_hash"`
	RealName     string     `json:"real_name" dynamodbav:"real_name"`
	IDDocType    string     `json:"id_doc_type" dynamodbav:"id_doc_type"`
	IDDocNumber  string     `json:"-" dynamodbav:"id_doc_number"`
	// IDDocument is the composite "type#number" attribute backing the
	// id_document-index GSI. Set by the repo on Create; never exposed.
	IDDocument  string     `json:"-" dynamodbav:"id_document"`
	LastLoginAt *time.Time `json:"last_login,omitempty" dynamodbav:"last_login_at"`
	Enable      bool       `json:"enable" dynamodbav:"enable"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated" dynamodbav:"updated_at"`
}

type RegisterRequest struct {
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"required"`
	RealName    string `json:"real_name" validate:"required"`
	IDDocType   string `json:"id_doc_type" validate:"required"`
	IDDocNumber string `json:"id_doc_number" validate:"required"`
}
