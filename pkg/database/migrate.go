package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names
const (
	TableProfiles            = "profiles"
	TableLeads               = "leads"
	TableBrokerOrder         = "broker_order"
	TableLeadDistributionLog = "lead_distribution_log"
)

var (
	// ProfilesColumns holds the columns for the "profiles" table.
	ProfilesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "full_name", Type: field.TypeString, Size: 120},
		{Name: "email", Type: field.TypeString, Unique: true, Size: 254},
		{Name: "phone", Type: field.TypeString, Size: 32, Default: ""},
		{Name: "role", Type: field.TypeEnum, Enums: []string{"client", "broker", "admin"}, Default: "client"},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// ProfilesTable holds the schema information for the "profiles" table.
	ProfilesTable = &schema.Table{
		Name:       TableProfiles,
		Columns:    ProfilesColumns,
		PrimaryKey: []*schema.Column{ProfilesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "profile_role",
				Unique:  false,
				Columns: []*schema.Column{ProfilesColumns[4]},
			},
		},
	}

	// LeadsColumns holds the columns for the "leads" table.
	LeadsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "name", Type: field.TypeString, Size: 120},
		{Name: "email", Type: field.TypeString, Size: 254, Default: ""},
		{Name: "phone", Type: field.TypeString, Size: 32},
		{Name: "location", Type: field.TypeString, Size: 120, Default: ""},
		{Name: "property_type", Type: field.TypeString, Size: 60, Default: ""},
		{Name: "price_range", Type: field.TypeString, Size: 60, Default: ""},
		{Name: "observations", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"pending", "assigned", "contacted", "qualified", "converted", "lost"}, Default: "pending"},
		{Name: "handled_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "handled_by", Type: field.TypeString, Nullable: true, Size: 36},
	}
	// LeadsTable holds the schema information for the "leads" table.
	LeadsTable = &schema.Table{
		Name:       TableLeads,
		Columns:    LeadsColumns,
		PrimaryKey: []*schema.Column{LeadsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "leads_profiles_handled_leads",
				Columns:    []*schema.Column{LeadsColumns[12]},
				RefColumns: []*schema.Column{ProfilesColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "lead_status_created_at",
				Unique:  false,
				Columns: []*schema.Column{LeadsColumns[8], LeadsColumns[10]},
			},
			{
				Name:    "lead_handled_by",
				Unique:  false,
				Columns: []*schema.Column{LeadsColumns[12]},
			},
		},
	}

	// BrokerOrderColumns holds the columns for the "broker_order" table.
	BrokerOrderColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "order_position", Type: field.TypeInt},
		{Name: "is_active", Type: field.TypeBool, Default: true},
		{Name: "last_assigned", Type: field.TypeTime, Nullable: true},
		{Name: "total_assigned", Type: field.TypeInt, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "broker_id", Type: field.TypeString, Unique: true, Size: 36},
	}
	// BrokerOrderTable holds the schema information for the "broker_order" table.
	BrokerOrderTable = &schema.Table{
		Name:       TableBrokerOrder,
		Columns:    BrokerOrderColumns,
		PrimaryKey: []*schema.Column{BrokerOrderColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "broker_order_profiles_roster_entry",
				Columns:    []*schema.Column{BrokerOrderColumns[7]},
				RefColumns: []*schema.Column{ProfilesColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "brokerorder_is_active_order_position",
				Unique:  false,
				Columns: []*schema.Column{BrokerOrderColumns[2], BrokerOrderColumns[1]},
			},
		},
	}

	// LeadDistributionLogColumns holds the columns for the "lead_distribution_log" table.
	LeadDistributionLogColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "order_position", Type: field.TypeInt},
		{Name: "assigned_at", Type: field.TypeTime},
		{Name: "lead_id", Type: field.TypeString, Size: 36},
		{Name: "broker_id", Type: field.TypeString, Size: 36},
	}
	// LeadDistributionLogTable holds the schema information for the "lead_distribution_log" table.
	LeadDistributionLogTable = &schema.Table{
		Name:       TableLeadDistributionLog,
		Columns:    LeadDistributionLogColumns,
		PrimaryKey: []*schema.Column{LeadDistributionLogColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "lead_distribution_log_leads_distribution",
				Columns:    []*schema.Column{LeadDistributionLogColumns[3]},
				RefColumns: []*schema.Column{LeadsColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "lead_distribution_log_profiles_distribution",
				Columns:    []*schema.Column{LeadDistributionLogColumns[4]},
				RefColumns: []*schema.Column{ProfilesColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "leaddistributionlog_lead_id",
				Unique:  false,
				Columns: []*schema.Column{LeadDistributionLogColumns[3]},
			},
			{
				Name:    "leaddistributionlog_broker_id_assigned_at",
				Unique:  false,
				Columns: []*schema.Column{LeadDistributionLogColumns[4], LeadDistributionLogColumns[2]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ProfilesTable,
		LeadsTable,
		BrokerOrderTable,
		LeadDistributionLogTable,
	}
)

func init() {
	LeadsTable.ForeignKeys[0].RefTable = ProfilesTable
	BrokerOrderTable.ForeignKeys[0].RefTable = ProfilesTable
	LeadDistributionLogTable.ForeignKeys[0].RefTable = LeadsTable
	LeadDistributionLogTable.ForeignKeys[1].RefTable = ProfilesTable
}

// Migrate creates or updates all tables
func Migrate(ctx context.Context, drv dialect.Driver) error {
	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("database/migrate: %w", err)
	}
	return migrate.Create(ctx, Tables...)
}
